package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talent-forge/collab-server/internal/analytics"
	"github.com/talent-forge/collab-server/internal/auth"
	"github.com/talent-forge/collab-server/internal/config"
	"github.com/talent-forge/collab-server/internal/gateway"
	"github.com/talent-forge/collab-server/internal/models"
	"github.com/talent-forge/collab-server/internal/notify"
	"github.com/talent-forge/collab-server/internal/ratelimit"
	"github.com/talent-forge/collab-server/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Name: "collab-server", Version: "test"},
		JWT: config.JWTConfig{
			Secret:         "test-secret",
			AccessTokenTTL: time.Hour,
		},
		Gateway: config.GatewayConfig{
			PresenceStaleAfter: time.Minute,
			WriteTimeout:       10 * time.Second,
			PongTimeout:        time.Minute,
			PingInterval:       54 * time.Second,
			SendBuffer:         64,
			MaxMessageSize:     65536,
			MinRefreshInterval: time.Second,
		},
		Analytics: config.AnalyticsConfig{
			CacheTTL:       time.Minute,
			TrendThreshold: 0.05,
			TrendWindow:    90 * 24 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{Ceiling: 3, Window: time.Minute},
	}
}

type testEnv struct {
	server *RESTServer
	store  *storage.MemoryStore
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	store := storage.NewMemoryStore()
	metrics := analytics.NewService(store, analytics.NewMemorySnapshotStore(), &cfg.Analytics)
	notifier := notify.NewDispatcher(store, nil)
	coordinator := gateway.NewCoordinator(&cfg.Gateway, metrics, notifier, nil)
	limiter := ratelimit.New(cfg.RateLimit.Ceiling, cfg.RateLimit.Window)

	return &testEnv{
		server: NewRESTServer(cfg, store, coordinator, metrics, limiter, notifier),
		store:  store,
		cfg:    cfg,
	}
}

func (e *testEnv) token(t *testing.T, tenantID uuid.UUID, name string) string {
	t.Helper()

	manager := auth.NewJWTManager(&e.cfg.JWT)
	token, err := manager.GenerateToken(auth.Claims{
		UserID:      uuid.New(),
		TenantID:    tenantID,
		DisplayName: name,
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/analytics/metrics", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A token signed with a different secret fails verification
	other := auth.NewJWTManager(&config.JWTConfig{Secret: "wrong", AccessTokenTTL: time.Hour})
	forged, err := other.GenerateToken(auth.Claims{UserID: uuid.New(), TenantID: uuid.New()})
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/api/v1/analytics/metrics", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetMetricsReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()

	env.store.AddEmployees(
		&models.Employee{ID: uuid.New(), TenantID: tenant, Name: "Alice", IsActive: true},
		&models.Employee{ID: uuid.New(), TenantID: tenant, Name: "Bob", IsActive: true},
	)

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/metrics", env.token(t, tenant, "Alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.MetricsSnapshot
	decode(t, rec, &snapshot)
	assert.Equal(t, tenant, snapshot.TenantID)
	assert.Equal(t, 2, snapshot.Headcount)
	assert.Len(t, snapshot.Modules, len(models.AllModules))
}

func TestInsightsRateLimitDegrades(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()
	token := env.token(t, tenant, "Alice")

	// The ceiling is three refreshing calls per window
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/analytics/insights", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		decode(t, rec, &body)
		assert.Equal(t, false, body["throttled"])
	}

	// The fourth call still succeeds but degrades to the cached digest
	rec := env.do(t, http.MethodPost, "/api/v1/analytics/insights", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, true, body["throttled"])
	assert.NotNil(t, body["retryAfterSeconds"])
	assert.NotEmpty(t, body["insights"])

	// Another tenant is unaffected
	rec = env.do(t, http.MethodPost, "/api/v1/analytics/insights", env.token(t, uuid.New(), "Eve"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, false, body["throttled"])
}

func TestRateLimitStatusDoesNotConsume(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, uuid.New(), "Alice")

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodGet, "/api/v1/analytics/rate-limit", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result ratelimit.Result
		decode(t, rec, &result)
		assert.True(t, result.Allowed)
		assert.Equal(t, 3, result.Remaining)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()
	token := env.token(t, tenant, "Alice")

	rec := env.do(t, http.MethodPost, "/api/v1/notifications/", token, map[string]string{
		"title":   "Pipeline updated",
		"message": "Candidate moved to onsite",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Notification
	decode(t, rec, &created)
	assert.Equal(t, tenant, created.TenantID)
	assert.Equal(t, models.NotificationCategorySystem, created.Category)
	assert.Equal(t, models.NotificationSeverityInfo, created.Severity)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int64
	decode(t, rec, &count)
	assert.Equal(t, int64(1), count["count"])

	rec = env.do(t, http.MethodPut, "/api/v1/notifications/"+created.ID.String()+"/read", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", token, nil)
	decode(t, rec, &count)
	assert.Equal(t, int64(0), count["count"])

	// Unknown ids are a 404, malformed ids a 400
	rec = env.do(t, http.MethodPut, "/api/v1/notifications/"+uuid.New().String()+"/read", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodPut, "/api/v1/notifications/zzz/read", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateNotificationValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, uuid.New(), "Alice")

	rec := env.do(t, http.MethodPost, "/api/v1/notifications/", token, map[string]string{
		"title": "Missing message",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNotificationsIsTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	tenantA := uuid.New()
	tenantB := uuid.New()

	env.do(t, http.MethodPost, "/api/v1/notifications/", env.token(t, tenantA, "Alice"), map[string]string{
		"title": "a", "message": "for tenant A",
	})
	env.do(t, http.MethodPost, "/api/v1/notifications/", env.token(t, tenantB, "Bob"), map[string]string{
		"title": "b", "message": "for tenant B",
	})

	rec := env.do(t, http.MethodGet, "/api/v1/notifications/", env.token(t, tenantA, "Alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Notifications []*models.Notification `json:"notifications"`
		Total         int64                  `json:"total"`
	}
	decode(t, rec, &body)
	assert.Equal(t, int64(1), body.Total)
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "a", body.Notifications[0].Title)
}
