package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/go-account-service/internal/auth"
	"github.com/redmonkez12/go-account-service/internal/config"
	"github.com/redmonkez12/go-account-service/internal/httputil"
	"github.com/redmonkez12/go-account-service/internal/logging"
	"github.com/redmonkez12/go-account-service/internal/metrics"
)

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) error

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string `json:"status"`
}

// NewRouter creates and configures the HTTP router
func NewRouter(
	cfg *config.Config,
	authHandler *auth.Handler,
	authMiddleware *auth.Middleware,
	m *metrics.Metrics,
	health HealthCheck,
	logger *logging.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	r.Use(SecurityHeaders(!cfg.Server.IsDevelopment()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Compress(5))

	r.Get("/health", handleHealth(health))
	r.Handle("/metrics", m.Handler())

	// Swagger UI - only in development
	if cfg.Server.IsDevelopment() {
		logger.Info("Swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route("/api/v1/user", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/otp-verification", authHandler.VerifyOTP)
		r.Post("/login", authHandler.Login)
		r.Post("/password/forgot", authHandler.ForgotPassword)
		r.Put("/password/reset/{token}", authHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	})

	return r
}

// handleHealth reports liveness and, when a check is configured, database reachability
// @Summary      Health check
// @Description  Check if the API and its database are reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func handleHealth(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				logging.GetLoggerFromContext(r.Context()).Error("health check failed", "error", err)
				httputil.RespondJSON(w, HealthResponse{Status: "unavailable"}, http.StatusServiceUnavailable)
				return
			}
		}
		httputil.RespondJSON(w, HealthResponse{Status: "api is running"}, http.StatusOK)
	}
}
