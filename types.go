package keyturn

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/keyturnlabs/keyturn/internal/audit"
	internalmetrics "github.com/keyturnlabs/keyturn/internal/metrics"
)

// CredentialKind distinguishes the two independently hashed secrets a
// principal owns: the short login secret (PIN) verified on login, and the
// rotating secret replaced by the change-secret workflow.
type CredentialKind uint8

const (
	// KindLogin is the secret verified during login and when proving
	// ownership before a rotation.
	KindLogin CredentialKind = iota
	// KindRotating is the secret replaced by a committed rotation.
	KindRotating
)

// String returns the stable wire/storage name of the kind.
func (k CredentialKind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindRotating:
		return "rotating"
	default:
		return "unknown"
	}
}

// Credential is the stored form of a secret: the principal it belongs to,
// its kind, and the argon2id PHC hash string. The raw secret is never
// persisted.
type Credential struct {
	PrincipalID string
	Kind        CredentialKind
	SecretHash  string
	UpdatedAt   time.Time
}

// CredentialStore is the durable mapping from principal identity to hashed
// secrets. Implementations must never compare hashes for equality; the
// workflow performs constant-time verification through [secret.Hasher].
//
// Get returns [ErrPrincipalNotFound] when the principal (or the kind for
// that principal) does not exist. Replace returns [ErrPrincipalNotFound]
// under the same condition; a wrong secret is never a store error.
type CredentialStore interface {
	Get(ctx context.Context, principalID string, kind CredentialKind) (Credential, error)
	Replace(ctx context.Context, principalID string, kind CredentialKind, newHash string) error
}

// AuditEntry is one immutable row of the durable audit trail.
type AuditEntry struct {
	PrincipalID string
	EventKind   string
	Origin      string
	UserAgent   string
	CreatedAt   time.Time
}

// AuditLog is the durable, append-only event trail. Append must not fail
// silently: a write failure propagates to the caller as a store failure.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// LoginResult is returned by [Workflow.Login] on success.
type LoginResult struct {
	PrincipalID  string
	SessionToken string
}

// AuditEvent is the in-process audit record fanned out to the configured
// [AuditSink]. It mirrors the durable [AuditEntry] plus outcome metadata.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the workflow's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events, one per
// line, to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess        = internalmetrics.MetricLoginSuccess
	MetricLoginFailure        = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited    = internalmetrics.MetricLoginRateLimited
	MetricLogout              = internalmetrics.MetricLogout
	MetricSessionCreated      = internalmetrics.MetricSessionCreated
	MetricSessionInvalidated  = internalmetrics.MetricSessionInvalidated
	MetricRotationSuccess     = internalmetrics.MetricRotationSuccess
	MetricRotationRejected    = internalmetrics.MetricRotationRejected
	MetricRotationRateLimited = internalmetrics.MetricRotationRateLimited
	MetricRateLimitHit        = internalmetrics.MetricRateLimitHit
	MetricLoginLatency        = internalmetrics.MetricLoginLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
