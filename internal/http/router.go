package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrJamesThe3rd/chargemirror/internal/http/charges"
	keysHandler "github.com/MrJamesThe3rd/chargemirror/internal/http/keys"
	syncHandler "github.com/MrJamesThe3rd/chargemirror/internal/http/sync"
)

func New(
	chargesV1 *charges.Handler,
	syncV1 *syncHandler.Handler,
	keysV1 *keysHandler.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// The admin UI is served from another origin.
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1/orgs/{orgID}", func(r chi.Router) {
		r.Route("/charges", chargesV1.Routes)

		r.Route("/sync", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			syncV1.Routes(r)
		})

		r.Route("/keys", keysV1.Routes)
	})

	return router
}
