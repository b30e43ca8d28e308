package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/talent-forge/collab-server/internal/analytics"
	"github.com/talent-forge/collab-server/internal/models"
	"github.com/talent-forge/collab-server/internal/notify"
	"github.com/talent-forge/collab-server/internal/storage"
)

// ========== Health ==========

// HandleHealth reports liveness
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"server":  s.config.Server.Name,
		"version": s.config.Server.Version,
	})
}

// ========== Gateway introspection ==========

// HandleGatewayStats reports connection statistics
func (s *RESTServer) HandleGatewayStats(w http.ResponseWriter, r *http.Request) {
	total, perTenant := s.coordinator.Registry().Stats()

	counts := make(map[string]int, len(perTenant))
	for tenantID, n := range perTenant {
		counts[tenantID.String()] = n
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"totalConnections": total,
		"activeTenants":    len(perTenant),
		"tenantCounts":     counts,
	})
}

// ========== Analytics ==========

// HandleGetMetrics returns the tenant's cached metrics snapshot,
// recomputing when expired or when ?refresh=true
func (s *RESTServer) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	forceRefresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	snapshot, err := s.metrics.GetMetrics(r.Context(), claims.TenantID, forceRefresh)
	if err != nil {
		log.Error().Err(err).Str("tenant", claims.TenantID.String()).Msg("Failed to get metrics")
		s.respondError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, snapshot)
}

// HandleRefreshMetrics recomputes the snapshot and broadcasts it to
// every connected viewer of the tenant
func (s *RESTServer) HandleRefreshMetrics(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	snapshot, err := s.metrics.GetMetrics(r.Context(), claims.TenantID, true)
	if err != nil {
		log.Error().Err(err).Str("tenant", claims.TenantID.String()).Msg("Failed to refresh metrics")
		s.respondError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}

	s.coordinator.BroadcastMetrics(snapshot)

	s.respondJSON(w, http.StatusOK, snapshot)
}

// HandleInsights produces a dashboard digest. The expensive reasoning
// path is rate limited per tenant; a denied request degrades to the
// cheap deterministic digest instead of failing.
func (s *RESTServer) HandleInsights(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	result := s.limiter.TryConsume(claims.TenantID)

	snapshot, err := s.metrics.GetMetrics(r.Context(), claims.TenantID, result.Allowed)
	if err != nil {
		log.Error().Err(err).Str("tenant", claims.TenantID.String()).Msg("Failed to get metrics for insights")
		s.respondError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}

	response := map[string]interface{}{
		"insights":   analytics.Insights(snapshot),
		"computedAt": snapshot.ComputedAt,
		"throttled":  !result.Allowed,
	}
	if !result.Allowed {
		response["retryAfterSeconds"] = int(time.Until(result.ResetAt).Seconds()) + 1
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleRateLimitStatus reports the tenant's remaining allowance
// without consuming it
func (s *RESTServer) HandleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	s.respondJSON(w, http.StatusOK, s.limiter.Remaining(claims.TenantID))
}

// ========== Notifications ==========

// HandleListNotifications lists the tenant's notifications
func (s *RESTServer) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	filters := storage.NotificationFilters{
		TenantID: claims.TenantID,
		UserID:   &claims.UserID,
	}

	if unread, _ := strconv.ParseBool(r.URL.Query().Get("unread")); unread {
		filters.UnreadOnly = true
	}

	if category := r.URL.Query().Get("category"); category != "" {
		c := models.NotificationCategory(category)
		filters.Category = &c
	}

	notifications, total, err := s.notifier.List(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"total":         total,
	})
}

// HandleCreateNotification creates and broadcasts a notification
func (s *RESTServer) HandleCreateNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req struct {
		UserID   *uuid.UUID                  `json:"userId"`
		Category models.NotificationCategory `json:"category"`
		Severity models.NotificationSeverity `json:"severity"`
		Title    string                      `json:"title"`
		Message  string                      `json:"message"`
		Link     string                      `json:"link"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" || req.Message == "" {
		s.respondError(w, http.StatusBadRequest, "title and message are required")
		return
	}

	if req.Category == "" {
		req.Category = models.NotificationCategorySystem
	}
	if req.Severity == "" {
		req.Severity = models.NotificationSeverityInfo
	}

	n := s.notifier.Create(r.Context(), notify.CreateInput{
		TenantID: claims.TenantID,
		UserID:   req.UserID,
		Category: req.Category,
		Severity: req.Severity,
		Title:    req.Title,
		Message:  req.Message,
		Link:     req.Link,
	})

	s.coordinator.BroadcastNotification(n)

	s.respondJSON(w, http.StatusCreated, n)
}

// HandleUnreadCount reports unread notifications visible to the caller
func (s *RESTServer) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	count, err := s.notifier.UnreadCount(r.Context(), claims.TenantID, &claims.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": count,
	})
}

// HandleMarkRead flips the read flag on one notification
func (s *RESTServer) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := s.notifier.MarkRead(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "notification not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleMarkAllRead marks all notifications visible to the caller as read
func (s *RESTServer) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	updated, err := s.notifier.MarkAllRead(r.Context(), claims.TenantID, &claims.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"updated": updated,
	})
}

// ========== Helpers ==========

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
