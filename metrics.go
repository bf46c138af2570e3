package goGrant

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSignUpSuccess counts local sign-ups that issued a code.
	MetricSignUpSuccess MetricID = iota
	// MetricSignUpEmailInUse counts sign-ups rejected for an email owned by another account.
	MetricSignUpEmailInUse
	// MetricSignInSuccess counts local sign-ins that issued a code.
	MetricSignInSuccess
	// MetricSignInFailure counts sign-ins rejected for an unknown user or a wrong password.
	MetricSignInFailure
	// MetricSignInRateLimited counts sign-ins rejected by the login budget.
	MetricSignInRateLimited
	// MetricCodeExchangeSuccess counts authorization codes exchanged for tokens.
	MetricCodeExchangeSuccess
	// MetricCodeExchangeFailure counts failed authorization code exchanges.
	MetricCodeExchangeFailure
	// MetricRefreshSuccess counts refresh rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed refreshes.
	MetricRefreshFailure
	// MetricRefreshReplayDetected counts refresh tokens presented after rotation.
	MetricRefreshReplayDetected
	// MetricSessionCreated counts sessions created at token issuance.
	MetricSessionCreated
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts close-all-sessions operations.
	MetricLogoutAll
	// MetricRecoveryRequested counts recovery mails sent.
	MetricRecoveryRequested
	// MetricPasswordResetSuccess counts completed password resets.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure counts rejected password resets.
	MetricPasswordResetFailure
	// MetricEmailVerificationRequested counts verification mails sent.
	MetricEmailVerificationRequested
	// MetricEmailVerificationSuccess counts verified email addresses.
	MetricEmailVerificationSuccess
	// MetricEmailVerificationFailure counts rejected email verifications.
	MetricEmailVerificationFailure
	// MetricProviderSignUp counts provider authorization URIs issued.
	MetricProviderSignUp
	// MetricProviderCallbackSuccess counts provider callbacks that issued a code.
	MetricProviderCallbackSuccess
	// MetricProviderCallbackFailure counts failed provider callbacks.
	MetricProviderCallbackFailure
	// MetricPasswordChangeSuccess counts password changes.
	MetricPasswordChangeSuccess
	// MetricAccountCompleted counts incomplete accounts promoted to the durable store.
	MetricAccountCompleted
	// MetricAccountDeleted counts accounts removed with DeleteAccount.
	MetricAccountDeleted
	// MetricBookkeepingFailure counts session index updates that failed.
	MetricBookkeepingFailure
	// MetricValidateLatency is the access-token validation latency histogram.
	MetricValidateLatency
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

// Metrics is a fixed set of lock-free counters. A disabled Metrics ignores
// every update and snapshots as empty.
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

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id. It is safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram of id. Only
// MetricValidateLatency has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Histograms are included only when latency
// histograms are enabled.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
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
