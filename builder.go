package keyturn

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/keyturnlabs/keyturn/internal/window"
	"github.com/keyturnlabs/keyturn/secret"
	"github.com/keyturnlabs/keyturn/session"
)

// Builder assembles a [Workflow]. Configure it fluently, call Build once,
// and discard it.
type Builder struct {
	config Config
	redis  *redis.Client

	credentials CredentialStore
	auditLog    AuditLog
	auditSink   AuditSink

	built bool
}

// New returns a [Builder] preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis wires the Redis client backing sessions and the rate limiter.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore wires the durable credential store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithAuditLog wires the durable append-only audit trail.
func (b *Builder) WithAuditLog(log AuditLog) *Builder {
	b.auditLog = log
	return b
}

// WithAuditSink wires the in-process observer sink. Optional; without one
// the dispatcher discards events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every collaborator, and returns
// the ready [Workflow].
func (b *Builder) Build() (*Workflow, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.auditLog == nil {
		return nil, errors.New("audit log required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := secret.NewHasher(secret.Config{
		Memory:      cfg.Secret.Memory,
		Time:        cfg.Secret.Time,
		Parallelism: cfg.Secret.Parallelism,
		SaltLength:  cfg.Secret.SaltLength,
		KeyLength:   cfg.Secret.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	workflow := &Workflow{
		config:      cloneConfig(cfg),
		credentials: b.credentials,
		auditLog:    b.auditLog,
		hasher:      hasher,
		limiter: window.New(b.redis, window.Config{
			MaxAttempts: cfg.RateLimit.MaxAttempts,
			Window:      cfg.RateLimit.Window,
		}),
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
	}

	b.built = true

	return workflow, nil
}
