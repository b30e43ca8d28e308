package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// WebSocket gateway (token carried in query string or header)
	r.Get("/gateway/ws", s.wsHandler.ServeHTTP)

	// Protected routes
	r.Group(func(r chi.Router) {
		// Gateway introspection
		r.Route("/gateway", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/stats", s.HandleGatewayStats)
		})

		// Analytics
		r.Route("/analytics", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/metrics", s.HandleGetMetrics)
			r.Post("/refresh", s.HandleRefreshMetrics)
			r.Post("/insights", s.HandleInsights)
			r.Get("/rate-limit", s.HandleRateLimitStatus)
		})

		// Notifications
		r.Route("/notifications", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListNotifications)
			r.Post("/", s.HandleCreateNotification)
			r.Get("/unread-count", s.HandleUnreadCount)
			r.Put("/read-all", s.HandleMarkAllRead)
			r.Put("/{id}/read", s.HandleMarkRead)
		})
	})
}
