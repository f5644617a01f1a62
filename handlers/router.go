package handlers

import (
	"net/http"

	"epserver/core"
	"epserver/handlers/api/documents"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type RouterOptions struct {
	AllowedOrigins  []string
	MaxDocumentSize int
	Gatherer        prometheus.Gatherer
}

// maxBodyBytes leaves room for JSON escaping of the document and for the history array.
func maxBodyBytes(maxDocumentSize int) int64 {
	return int64(maxDocumentSize)*6 + 1<<20
}

func NewRouter(service *core.DocumentService, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logrus.StandardLogger(), NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		MaxAge:         300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("you are all set"))
	})
	r.Get("/healthz", documents.HandleHealth(service))
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/documents", func(r chi.Router) {
		r.Post("/{digest}", documents.HandleCreate(service, maxBodyBytes(opts.MaxDocumentSize)))
		r.Get("/{id}", documents.HandleGet(service))
	})
	r.Put("/delete_test_sheets", documents.HandlePurge(service))

	return r
}
