package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Config holds router settings
type Config struct {
	SecretKey      string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewRouter mounts the media API, health check and metrics endpoint.
//
//	POST   /api/v1/upload/{type}
//	GET    /api/v1/media/{fileID}
//	DELETE /api/v1/media/{fileID}
//	POST   /api/v1/media/{fileID}/use
//	POST   /api/v1/media/{fileID}/crop
//	POST   /api/v1/gc/{type}
//	GET    /healthz
//	GET    /metrics
func NewRouter(service simplemedia.Service, config Config) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handler := NewMediaHandler(service, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SecretMiddleware(config.SecretKey, logger))

		r.With(RequestSizeLimitMiddleware(config.MaxUploadBytes)).Post("/upload/{type}", handler.Upload)
		r.Mount("/media", handler.Routes())
		r.Post("/gc/{type}", handler.GarbageCollect)
	})

	return r
}
