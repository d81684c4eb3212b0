package estateauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one Engine counter. IDs are dense and stable so that
// exporters can index them.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful password logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins (bad credentials, inactive account).
	MetricLoginFailure
	// MetricLoginRateLimited counts logins refused by the failed-attempt throttle.
	MetricLoginRateLimited
	// MetricSessionIssued counts new token families.
	MetricSessionIssued
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected rotations of any kind.
	MetricRefreshFailure
	// MetricReplayDetected counts presentations of a consumed refresh token.
	MetricReplayDetected
	// MetricFamilyRevoked counts families revoked by logout, replay or account state.
	MetricFamilyRevoked
	// MetricLogout counts EndSession calls that revoked something.
	MetricLogout
	// MetricLogoutAll counts EndAllSessions calls.
	MetricLogoutAll
	// MetricAccessTokenRevoked counts access tokens put on the deny list.
	MetricAccessTokenRevoked
	// MetricAuthenticateSuccess counts requests that resolved to a live identity.
	MetricAuthenticateSuccess
	// MetricAuthenticateFailure counts requests rejected as unauthenticated.
	MetricAuthenticateFailure
	// MetricAuthenticateAnonymous counts optional-auth requests without a token.
	MetricAuthenticateAnonymous
	// MetricForbidden counts authenticated requests that failed the role or permission check.
	MetricForbidden
	// MetricUpstreamUnavailable counts lookups or store calls that could not be evaluated.
	MetricUpstreamUnavailable
	// MetricRateLimitAdmitted counts admissions granted by the route limiter.
	MetricRateLimitAdmitted
	// MetricRateLimitDenied counts admissions refused by the route limiter.
	MetricRateLimitDenied
	// MetricPasswordUpgraded counts stored hashes re-hashed after login.
	MetricPasswordUpgraded
	// MetricAuthenticateLatency is the latency histogram for Authenticate.
	MetricAuthenticateLatency
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

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// Counters are padded to a cache line so hot paths on different cores do
// not contend.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics honoring cfg. A disabled Metrics accepts
// calls and records nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricAuthenticateLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Histograms are included only when latency
// recording is enabled.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
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
