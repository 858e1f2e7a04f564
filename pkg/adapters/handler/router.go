package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/thitiwat-dev/go-shortlink/pkg/config"
	"github.com/thitiwat-dev/go-shortlink/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, service ports.LinkService, logger *slog.Logger) http.Handler {
	h := NewHTTPHandler(service, cfg.BaseURL)
	mw := NewMiddleware(cfg, logger)

	// protect wraps a route in JWT auth only in per-user mode; with
	// ownership disabled the API is open and OwnerID stays empty.
	protect := func(next http.HandlerFunc) http.Handler {
		if cfg.PerUser() {
			return mw.Auth(next)
		}
		return next
	}

	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		res := map[string]string{
			"message": "ok",
		}
		_ = json.NewEncoder(w).Encode(&res)
	})
	mux.HandleFunc("GET /{code}", h.Redirect)
	mux.HandleFunc("GET /api/links/public/{code}", h.GetPublicByCode)
	mux.HandleFunc("GET /api/links/qr/{code}", h.QR)

	// Owner-scoped Routes
	mux.Handle("POST /api/links", protect(h.Create))
	mux.Handle("GET /api/links", protect(h.List))
	mux.Handle("DELETE /api/links", protect(h.Delete))
	// Literal prefix: a {id}/stats pattern would overlap public/{code}
	// ambiguously and ServeMux rejects the pair.
	mux.Handle("GET /api/links/stats/{id}", protect(h.Stats))

	// Login flow only exists when links are owner-scoped
	if cfg.PerUser() {
		authHandler := NewAuthHandler(cfg, logger)
		mux.HandleFunc("GET /auth/google/login", authHandler.Login)
		mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
		mux.HandleFunc("GET /auth/logout", authHandler.Logout)
	}

	return mw.Logging(mux)
}
