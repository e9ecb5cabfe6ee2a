package authgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricTwoFactorRequired counts logins answered with a 2FA step-up.
	MetricTwoFactorRequired
	// MetricTwoFactorSuccess counts successful 2FA confirmations.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts rejected 2FA confirmations.
	MetricTwoFactorFailure
	// MetricLogout counts single-device logouts.
	MetricLogout
	// MetricLogoutAll counts all-device logouts.
	MetricLogoutAll
	// MetricSessionHydrated counts hydrations that restored a session.
	MetricSessionHydrated
	// MetricSessionHealed counts desynchronized records self-healed on load.
	MetricSessionHealed
	// MetricSessionExpired counts sessions cleared because the token expired.
	MetricSessionExpired
	// MetricRefreshSuccess counts successful token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed token refreshes.
	MetricRefreshFailure
	// MetricUserUpdated counts local user-snapshot merges.
	MetricUserUpdated
	// MetricWatchdogWarning counts expiry warnings raised.
	MetricWatchdogWarning
	// MetricGuardAllowed counts guard decisions that admitted a request.
	MetricGuardAllowed
	// MetricGuardDenied counts guard decisions resolved as redirects.
	MetricGuardDenied
	// MetricGuardLoading counts guard evaluations during hydration.
	MetricGuardLoading
	// MetricGuardStoreBlocked counts seller screens blocked by suspension
	// or an unresolvable status lookup.
	MetricGuardStoreBlocked
	// MetricCollectionFetch counts authoritative collection fetches applied.
	MetricCollectionFetch
	// MetricCollectionStaleDropped counts fetch responses discarded because
	// the session generation moved while they were in flight.
	MetricCollectionStaleDropped
	// MetricCollectionMutationFailure counts collection mutations the server
	// rejected.
	MetricCollectionMutationFailure
	// MetricChatConnect counts initial chat transport connections.
	MetricChatConnect
	// MetricChatReconnect counts chat transport reconnections.
	MetricChatReconnect
	// MetricChatDuplicateDropped counts inbound chat frames dropped by the
	// message-ID dedupe window.
	MetricChatDuplicateDropped
	// MetricHydrateLatency is the Initialize latency histogram.
	MetricHydrateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds fixed-ID atomic counters and an optional latency histogram.
// All operations are no-ops on a nil or disabled receiver, so optional wiring
// into subpackages needs no guards at call sites.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the hydrate latency histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricHydrateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a deep copy of all counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricHydrateLatency].buckets[i])
		}
		s.Histograms[MetricHydrateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
