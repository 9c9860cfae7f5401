package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds a counter id to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram id to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricOpen, Name: "gosession_open_total", Help: "Handler open calls."},
	{ID: goSession.MetricValidateHit, Name: "gosession_validate_hit_total", Help: "Session ids that matched a live record."},
	{ID: goSession.MetricValidateMiss, Name: "gosession_validate_miss_total", Help: "Session ids that matched no live record."},
	{ID: goSession.MetricIDCreated, Name: "gosession_id_created_total", Help: "Session ids created."},
	{ID: goSession.MetricIDCollision, Name: "gosession_id_collision_total", Help: "Generated ids that were already in use."},
	{ID: goSession.MetricWrite, Name: "gosession_write_total", Help: "Session records written."},
	{ID: goSession.MetricWriteElided, Name: "gosession_write_elided_total", Help: "Writes skipped for empty sessions."},
	{ID: goSession.MetricTouch, Name: "gosession_touch_total", Help: "Timestamp refreshes of unchanged sessions."},
	{ID: goSession.MetricReadOnlyTouch, Name: "gosession_read_only_touch_total", Help: "Timestamp refreshes issued at close for sessions never written."},
	{ID: goSession.MetricDestroy, Name: "gosession_destroy_total", Help: "Destroyed sessions."},
	{ID: goSession.MetricGC, Name: "gosession_gc_total", Help: "Garbage collection runs."},
	{ID: goSession.MetricBackendFailure, Name: "gosession_backend_failure_total", Help: "Fatal backend and codec failures."},
	{ID: goSession.MetricPayloadTooLarge, Name: "gosession_payload_too_large_total", Help: "Payloads rejected by a size-capped backend."},
	{ID: goSession.MetricHeaderDeduped, Name: "gosession_header_deduped_total", Help: "Duplicate Set-Cookie values removed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricContainerLatency, Name: "gosession_container_latency_seconds", Help: "Backend container call latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramBounds are the bucket upper bounds as exposition labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names bucket gauges for exporters without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
