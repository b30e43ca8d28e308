package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/talent-forge/collab-server/internal/analytics"
	"github.com/talent-forge/collab-server/internal/auth"
	"github.com/talent-forge/collab-server/internal/config"
	"github.com/talent-forge/collab-server/internal/gateway"
	"github.com/talent-forge/collab-server/internal/notify"
	"github.com/talent-forge/collab-server/internal/ratelimit"
	"github.com/talent-forge/collab-server/internal/storage"
)

type contextKey string

const claimsKey contextKey = "claims"

// RESTServer represents the REST API server
type RESTServer struct {
	config      *config.Config
	store       storage.Store
	auth        *auth.JWTManager
	coordinator *gateway.Coordinator
	wsHandler   *gateway.Handler
	metrics     *analytics.Service
	limiter     *ratelimit.Limiter
	notifier    *notify.Dispatcher
	router      chi.Router
	server      *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, store storage.Store, coordinator *gateway.Coordinator, metrics *analytics.Service, limiter *ratelimit.Limiter, notifier *notify.Dispatcher) *RESTServer {
	jwtManager := auth.NewJWTManager(&cfg.JWT)

	s := &RESTServer{
		config:      cfg,
		store:       store,
		auth:        jwtManager,
		coordinator: coordinator,
		wsHandler:   gateway.NewHandler(coordinator, jwtManager),
		metrics:     metrics,
		limiter:     limiter,
		notifier:    notifier,
		router:      chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Parse Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		// Validate token
		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom extracts the verified identity placed by authMiddleware
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}
