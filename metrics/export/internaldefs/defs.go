package internaldefs

import (
	keyturn "github.com/keyturnlabs/keyturn"
)

// CounterDef binds a core counter ID to its exported name and help text.
//
// CounterDef instances are configured during initialization and then treated
// as immutable.
type CounterDef struct {
	ID   keyturn.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its exported name and help text.
//
// HistogramDef instances are configured during initialization and then treated
// as immutable.
type HistogramDef struct {
	ID   keyturn.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed render order.
var CounterDefs = []CounterDef{
	{ID: keyturn.MetricLoginSuccess, Name: "keyturn_login_success_total", Help: "Successful login attempts."},
	{ID: keyturn.MetricLoginFailure, Name: "keyturn_login_failure_total", Help: "Failed login attempts."},
	{ID: keyturn.MetricLoginRateLimited, Name: "keyturn_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: keyturn.MetricLogout, Name: "keyturn_logout_total", Help: "Logout operations."},
	{ID: keyturn.MetricSessionCreated, Name: "keyturn_session_created_total", Help: "Created sessions."},
	{ID: keyturn.MetricSessionInvalidated, Name: "keyturn_session_invalidated_total", Help: "Session invalidation sweeps after credential rotation."},
	{ID: keyturn.MetricRotationSuccess, Name: "keyturn_rotation_success_total", Help: "Successful credential rotations."},
	{ID: keyturn.MetricRotationRejected, Name: "keyturn_rotation_rejected_total", Help: "Credential rotations rejected by validation or verification."},
	{ID: keyturn.MetricRotationRateLimited, Name: "keyturn_rotation_rate_limited_total", Help: "Rate-limited credential rotation attempts."},
	{ID: keyturn.MetricRateLimitHit, Name: "keyturn_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs lists every exported histogram in a fixed render order.
var HistogramDefs = []HistogramDef{
	{ID: keyturn.MetricLoginLatency, Name: "keyturn_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds holds the upper bucket bounds in seconds, as rendered in
// Prometheus le labels.
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

// HistogramBoundSuffix holds the bucket bound spellings usable in OTel
// instrument names.
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

// NormalizeBuckets copies a raw snapshot slice into a fixed-width bucket
// array, tolerating short or nil input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect. The last element equals the total sample
// count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
