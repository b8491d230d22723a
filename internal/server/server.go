// Package server assembles the HTTP surface: REST API, webhook ingress, SSE
// subscription, and the desktop socket upgrade path.
package server

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/overlaykit/relay/api"
	"github.com/overlaykit/relay/internal/desktop"
	"github.com/overlaykit/relay/internal/sse"
)

// NewRouter builds the chi router. API routes are validated against the
// embedded OpenAPI document; the SSE and desktop socket routes sit outside
// the validated group because they are long-lived streams.
func NewRouter(srv *Server, sseHandler *sse.Handler, hub *desktop.Hub, webhookLimit float64, webhookBurst int, logger *zap.Logger) (http.Handler, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(api.OpenAPISpec)
	if err != nil {
		return nil, err
	}
	swagger.Servers = nil // Allow any host

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	// Streaming routes, no validation or compression
	r.Get("/sse/{userKey}", sseHandler.ServeHTTP)
	r.Get("/streamer-events", hub.HandleWS)
	r.Get("/openapi.yaml", openapiHandler)

	// Webhook ingress behind a rate limiter
	r.Group(func(hookRouter chi.Router) {
		if webhookLimit > 0 {
			hookRouter.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(webhookLimit), webhookBurst)))
		}
		hookRouter.Post("/webhooks/twitch", srv.HandleWebhook)
	})

	// API routes with OpenAPI validation and response compression
	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(func(next http.Handler) http.Handler {
			return gzhttp.GzipHandler(next)
		})
		apiRouter.Use(oapimiddleware.OapiRequestValidator(swagger))

		apiRouter.Get("/api/events/{userKey}", srv.ListEvents)
		apiRouter.Post("/api/events/{userKey}", srv.TriggerEvent)
		apiRouter.Delete("/api/events/{userKey}", srv.ClearEvents)
		apiRouter.Post("/api/punishments", srv.TriggerPunishment)
		apiRouter.Delete("/api/punishments/{id}", srv.EndPunishment)
		apiRouter.Get("/api/health", srv.GetHealth)
	})

	return r, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(api.OpenAPISpec)
}
