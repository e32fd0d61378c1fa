package proxy

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
)

func mediaPath(k media.Kind) string {
	return "/api/send-" + string(k)
}

// RegisterRoutes mounts the proxy endpoints. apiMiddleware wraps the /api
// group only, so /health stays reachable for probes.
func RegisterRoutes(r chi.Router, h *Handler, apiMiddleware ...func(http.Handler) http.Handler) {
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	r.Group(func(r chi.Router) {
		r.Use(hlog.NewHandler(h.log), accessLog(), Recover)

		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware...)

			r.Get("/api", h.Info)
			r.Get("/api/status", h.Status)
			r.Post("/api/send-message", h.SendMessage)
			for _, k := range media.MediaKinds() {
				r.Post(mediaPath(k), h.SendMedia(k))
			}
		})
	})
}

func accessLog() func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
