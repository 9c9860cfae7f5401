package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one coordinator counter.
type MetricID uint16

const (
	// MetricOpen counts Open calls.
	MetricOpen MetricID = iota
	// MetricValidateHit counts ValidateID calls that found a live record.
	MetricValidateHit
	// MetricValidateMiss counts ValidateID calls that missed.
	MetricValidateMiss
	// MetricIDCreated counts ids handed out by CreateSessionID.
	MetricIDCreated
	// MetricIDCollision counts generated ids that already existed.
	MetricIDCollision
	// MetricWrite counts container writes.
	MetricWrite
	// MetricWriteElided counts writes skipped because the payload was empty.
	MetricWriteElided
	// MetricTouch counts container touches issued by UpdateTimestamp.
	MetricTouch
	// MetricReadOnlyTouch counts touches issued at Close for sessions never written.
	MetricReadOnlyTouch
	// MetricDestroy counts Destroy calls.
	MetricDestroy
	// MetricGC counts gc runs.
	MetricGC
	// MetricBackendFailure counts fatal container and codec errors.
	MetricBackendFailure
	// MetricPayloadTooLarge counts payloads rejected by a size-capped backend.
	MetricPayloadTooLarge
	// MetricHeaderDeduped counts Set-Cookie values removed by deduplication.
	MetricHeaderDeduped
	// MetricContainerLatency is the latency histogram of container calls.
	MetricContainerLatency
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

// Metrics holds lock-free counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metrics set from cfg.
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

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram of id. Only MetricContainerLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricContainerLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics return empty maps.
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
		if id == MetricContainerLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricContainerLatency].buckets[i])
		}
		s.Histograms[MetricContainerLatency] = buckets
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
