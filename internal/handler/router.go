package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"otp-agent/internal/util"
)

// RouteRegistrar mounts a group of routes under /api/v1.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type RouterOptions struct {
	AllowedOrigins []string
	RequireHTTPS   bool
	RequestTimeout time.Duration
	// Health reports dependency problems; nil means always healthy.
	Health func(ctx context.Context) error
}

// requireHTTPS rejects any request that wasn't made over TLS.
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired)
			_, _ = w.Write([]byte(`{"success":false,"error":"https_required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates the chi router with the middleware stack, /health and
// every registrar under /api/v1.
func NewRouter(opts RouterOptions, logger *zap.Logger, registrars ...RouteRegistrar) chi.Router {
	router := chi.NewRouter()
	base := responder{logger: logger}

	if opts.RequireHTTPS {
		router.Use(requireHTTPS)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		base.respondWithJSON(w, http.StatusNotFound, errorResponse(codeNotFound, "endpoint not found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		base.respondWithJSON(w, http.StatusMethodNotAllowed, errorResponse(codeMethodNotAllowed, "method not allowed"))
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "healthy", "service": "otp-agent"}
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				logger.Warn("Health check failed", util.ErrorField(err))
				body["status"] = "degraded"
				body["error"] = err.Error()
				base.respondWithJSON(w, http.StatusServiceUnavailable, body)
				return
			}
		}
		base.respondWithJSON(w, http.StatusOK, body)
	})

	router.Route("/api/v1", func(r chi.Router) {
		for _, reg := range registrars {
			reg.RegisterRoutes(r)
		}
	})

	return router
}

// LoggerMiddleware logs every request once it has been served.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
