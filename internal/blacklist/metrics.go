package blacklist

import (
	"github.com/prometheus/client_golang/prometheus"

	"feedsnap/internal/domain"
)

// Metrics groups the collectors updated by every run.
type Metrics struct {
	fetchAttempts  *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	invalidTokens  *prometheus.CounterVec
	feedAddresses  *prometheus.GaugeVec
	feedNetworks   *prometheus.GaugeVec
	refreshSeconds prometheus.Histogram
	lastRefresh    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsnap",
			Name:      "fetch_attempts_total",
			Help:      "HTTP attempts made per feed.",
		}, []string{"feed"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsnap",
			Name:      "fetch_failures_total",
			Help:      "Runs in which a feed could not be downloaded after all attempts.",
		}, []string{"feed"}),
		invalidTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsnap",
			Name:      "invalid_tokens_total",
			Help:      "Extracted tokens that were neither an address nor a range.",
		}, []string{"feed"}),
		feedAddresses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedsnap",
			Name:      "feed_addresses",
			Help:      "Unique addresses in the latest snapshot per feed.",
		}, []string{"feed"}),
		feedNetworks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedsnap",
			Name:      "feed_networks",
			Help:      "Unique networks in the latest snapshot per feed.",
		}, []string{"feed"}),
		refreshSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedsnap",
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of a complete run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feedsnap",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Capture timestamp of the latest snapshot.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.fetchAttempts,
			m.fetchFailures,
			m.invalidTokens,
			m.feedAddresses,
			m.feedNetworks,
			m.refreshSeconds,
			m.lastRefresh,
		)
	}
	return m
}

func (m *Metrics) observeFetch(feed string, res FeedTokens) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(feed).Add(float64(res.Attempts))
	if res.Failed {
		m.fetchFailures.WithLabelValues(feed).Inc()
	}
}

func (m *Metrics) observeSnapshot(snap *domain.Snapshot, invalid map[string]int, seconds float64) {
	if m == nil || snap == nil {
		return
	}
	m.feedAddresses.Reset()
	m.feedNetworks.Reset()
	for name, feed := range snap.Feeds {
		m.feedAddresses.WithLabelValues(name).Set(float64(len(feed.Addresses)))
		m.feedNetworks.WithLabelValues(name).Set(float64(len(feed.Networks)))
	}
	for name, n := range invalid {
		if n > 0 {
			m.invalidTokens.WithLabelValues(name).Add(float64(n))
		}
	}
	m.refreshSeconds.Observe(seconds)
	m.lastRefresh.Set(float64(snap.Timestamp))
}
