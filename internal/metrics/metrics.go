package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjeanneret/SnapGo/internal/logic/capture"
)

// Metric names exposed on /metrics.
const (
	SnapshotCount = "timelapse_snapshot_count"
	RejectedTotal = "timelapse_snapshot_rejected_total"
	FailedTotal   = "timelapse_snapshot_failed_total"
	LastSuccess   = "timelapse_last_success_timestamp_seconds"
)

// Metrics holds the Prometheus collectors for one feed.
type Metrics struct {
	feed     string
	registry *prometheus.Registry

	snapshots   *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	failed      *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// New registers the timelapse collectors for feed on a dedicated registry,
// together with the Go runtime and process collectors.
func New(feed string) (*Metrics, error) {
	m := &Metrics{
		feed:     feed,
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SnapshotCount,
			Help: "The number of snapshots taken by the timelapse service.",
		}, []string{"feed"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RejectedTotal,
			Help: "Frames skipped because they matched the placeholder image.",
		}, []string{"feed"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: FailedTotal,
			Help: "Cycles that failed to fetch or persist a frame, by reason.",
		}, []string{"feed", "reason"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: LastSuccess,
			Help: "Unix time of the last accepted snapshot.",
		}, []string{"feed"}),
	}

	for _, c := range []prometheus.Collector{
		m.snapshots,
		m.rejected,
		m.failed,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	// Expose zero values before the first cycle completes.
	m.snapshots.WithLabelValues(feed)
	m.rejected.WithLabelValues(feed)

	return m, nil
}

// SnapshotCounter returns the accepted-frame counter for this feed.
// It is the only counter the scheduler increments.
func (m *Metrics) SnapshotCounter() prometheus.Counter {
	return m.snapshots.WithLabelValues(m.feed)
}

// Report records rejections, failures and the last success time.
// Accepted frames are counted by the scheduler through SnapshotCounter.
func (m *Metrics) Report(out capture.Outcome) {
	switch out.Result {
	case capture.Accepted:
		m.lastSuccess.WithLabelValues(m.feed).Set(float64(out.Started.Add(out.Duration).Unix()))
	case capture.Rejected:
		m.rejected.WithLabelValues(m.feed).Inc()
	case capture.Failed:
		m.failed.WithLabelValues(m.feed, out.Category().String()).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
