package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"goji.io"
	"goji.io/pat"
)

func NewRouter(h *Handler, logger logrus.FieldLogger) http.Handler {
	mux := goji.NewMux()
	mux.Use(requestLogger(logger))
	mux.Use(recoverer(logger))

	corsHandler := newCORS(h.cfg.CORSOrigins)

	mux.HandleFunc(pat.Get("/"), h.Home)
	mux.HandleFunc(pat.Get("/health"), h.Health)
	mux.Handle(pat.Get("/static/*"), http.StripPrefix("/static", http.FileServer(http.Dir(h.cfg.StaticDir))))
	mux.Handle(pat.Post("/analyze"), corsHandler.Handler(http.HandlerFunc(h.Analyze)))
	mux.Handle(pat.Options("/analyze"), corsHandler.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	return noCache(mux)
}

func newCORS(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			allowAll = true
		}
	}
	if allowAll {
		// echo the request origin; "*" is not valid alongside credentials
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.New(opts)
}
