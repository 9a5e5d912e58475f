// Package httpapi serves the herd records over a small local JSON API.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/Arthur-Meier/AgroTech/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	Repo   *storage.AnimalRepository
	Logger *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	RegisterRoutes(r, opts.Repo, logger)
	return r
}
