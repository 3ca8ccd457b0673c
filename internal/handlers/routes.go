package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes mounts every endpoint on a chi router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RecoverJSON)
	r.Use(AccessLog(AccessLogOptions{Slow: 5 * time.Second}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Post("/analyze", h.Analyze)

	uploads := http.StripPrefix(UploadPrefix, http.FileServer(http.Dir(h.cfg.UploadDir)))
	r.Handle(UploadPrefix+"*", uploads)
	return r
}

func (h *Handler) origins() []string {
	if len(h.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return h.cfg.CORSOrigins
}
