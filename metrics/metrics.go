package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DocumentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "epserver", Name: "documents_created_total", Help: "Number of documents inserted."},
	)
	DocumentsDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "epserver", Name: "documents_deduplicated_total", Help: "Number of create requests answered with an existing document."},
	)
	DocumentsRead = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "epserver", Name: "documents_read_total", Help: "Number of successful document reads."},
	)
	DocumentsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "epserver", Name: "documents_purged_total", Help: "Number of test documents deleted."},
	)
	DocumentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "epserver", Name: "document_errors_total", Help: "Number of failed document requests by error kind."},
		[]string{"kind"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(DocumentsCreated)
	reg.MustRegister(DocumentsDeduplicated)
	reg.MustRegister(DocumentsRead)
	reg.MustRegister(DocumentsPurged)
	reg.MustRegister(DocumentErrors)
}
