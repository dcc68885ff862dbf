package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter builds the chi router with the global middleware stack. When
// staticDir is set, files under it are served at the root.
func NewRouter(h *HTTPHandler, logger *zap.Logger, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))

	h.Routes(r)

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}
	return r
}
