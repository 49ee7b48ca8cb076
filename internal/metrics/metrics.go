package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "job_booking",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	opsUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "job_booking",
			Name:      "sync_ops_uploaded_total",
			Help:      "Pending operation upload outcomes.",
		},
		[]string{"outcome"}, // acked, rejected, transport_error
	)

	changesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "job_booking",
			Name:      "sync_changes_applied_total",
			Help:      "Remote changes applied to the local store.",
		},
	)

	pendingDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "job_booking",
			Name:      "sync_pending_operations",
			Help:      "Pending operations awaiting upload.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, opsUploaded, changesApplied, pendingDepth)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncUpload records one upload outcome: acked, rejected or transport_error.
func IncUpload(outcome string) {
	opsUploaded.WithLabelValues(outcome).Inc()
}

// AddChangesApplied records remote changes applied locally.
func AddChangesApplied(n int) {
	changesApplied.Add(float64(n))
}

// SetPendingDepth records the current upload queue depth.
func SetPendingDepth(n int) {
	pendingDepth.Set(float64(n))
}
