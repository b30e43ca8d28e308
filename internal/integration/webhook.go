// Package integration forwards notification events to external systems
// configured per tenant. Delivery is best-effort: a failed endpoint is
// logged and never blocks in-room broadcast.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/talent-forge/collab-server/internal/config"
	"github.com/talent-forge/collab-server/internal/models"
)

// WebhookForwarder posts notification records to per-tenant HTTP
// endpoints
type WebhookForwarder struct {
	mu        sync.RWMutex
	endpoints map[uuid.UUID][]string

	httpClient *http.Client
}

// NewWebhookForwarder creates a forwarder from configuration
func NewWebhookForwarder(cfg *config.IntegrationConfig) *WebhookForwarder {
	f := &WebhookForwarder{
		endpoints: make(map[uuid.UUID][]string),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}

	for _, hook := range cfg.Webhooks {
		tenantID, err := uuid.Parse(hook.TenantID)
		if err != nil {
			log.Warn().Str("tenant", hook.TenantID).Msg("Skipping webhook with invalid tenant id")
			continue
		}
		f.endpoints[tenantID] = append(f.endpoints[tenantID], hook.URL)
	}

	return f
}

// ForwardNotification posts the record to every endpoint registered for
// its tenant. Runs synchronously; callers fan it out on a goroutine.
func (f *WebhookForwarder) ForwardNotification(ctx context.Context, n *models.Notification) {
	f.mu.RLock()
	urls := f.endpoints[n.TenantID]
	f.mu.RUnlock()

	if len(urls) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event":        "notification.created",
		"notification": n,
		"timestamp":    time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal webhook payload")
		return
	}

	for _, url := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			log.Error().Err(err).Str("url", url).Msg("Failed to build webhook request")
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			log.Warn().Err(err).
				Str("url", url).
				Str("tenant", n.TenantID.String()).
				Msg("Webhook delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			log.Warn().
				Int("status", resp.StatusCode).
				Str("url", url).
				Str("tenant", n.TenantID.String()).
				Msg("Webhook endpoint returned non-success status")
		}
	}
}
