// Package metrics holds the prometheus collectors exposed by ares.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// RecordsCreated counts managed record creations (tracking + value
	// record pairs) per zone.
	RecordsCreated = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "ares_records_created_total",
		Help: "Number of DNS records created by ares, by zone.",
	}, []string{"zone"})

	// RecordsDeleted counts managed record deletions per zone.
	RecordsDeleted = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "ares_records_deleted_total",
		Help: "Number of DNS records deleted by ares, by zone.",
	}, []string{"zone"})

	// SyncCycles counts full reconciliation passes per managed fqdn.
	SyncCycles = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "ares_sync_cycles_total",
		Help: "Number of full sync cycles run, by record fqdn.",
	}, []string{"fqdn"})

	// TaskRestarts counts reconcile task restarts after a failed attempt.
	TaskRestarts = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "ares_task_restarts_total",
		Help: "Number of reconcile task restarts after failure, by record fqdn.",
	}, []string{"fqdn"})
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns the HTTP handler serving the ares metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
