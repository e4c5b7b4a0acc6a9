package keyturn

import (
	"errors"
	"time"
)

// Config carries every tunable of the workflow. Instances are configured
// during initialization and treated as immutable afterwards; the Builder
// clones them defensively.
type Config struct {
	Secret    SecretConfig
	Policy    PolicyConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Store     StoreConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// SecretConfig holds the argon2id parameters used for hashing and for
// rehash-on-login detection.
type SecretConfig struct {
	Memory        uint32 // in KB
	Time          uint32
	Parallelism   uint8
	SaltLength    uint32
	KeyLength     uint32
	RehashOnLogin bool
}

// PolicyConfig defines the shape a new rotating secret must satisfy before
// the old secret is even verified.
type PolicyConfig struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// RateLimitConfig tunes the sliding failure window. A failure count of
// MaxAttempts or more within Window, on either the origin key or the
// principal key, blocks the next attempt.
type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// SessionConfig tunes session persistence.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

// StoreConfig bounds every durable-store call. A deadline hit is treated as
// a store-connectivity failure.
type StoreConfig struct {
	Timeout time.Duration
}

// AuditConfig tunes the in-process audit sink dispatcher. The durable audit
// log is always on; this only governs the observer feed.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process metric counters and the optional
// login latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Secret: SecretConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: PolicyConfig{
			MinLength:    8,
			RequireUpper: true,
			RequireLower: true,
			RequireDigit: true,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix: "kt",
			TTL:         12 * time.Hour,
		},
		Store: StoreConfig{
			Timeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultConfig returns the production defaults: argon2id 64MB/t=3/p=2,
// 8-character mixed-class secret policy, 5 failures per 15 minutes, 12 hour
// sessions.
func DefaultConfig() Config {
	return defaultConfig()
}

// Validate rejects configurations the workflow cannot run with.
func (c Config) Validate() error {
	if c.RateLimit.MaxAttempts <= 0 {
		return errors.New("RateLimit.MaxAttempts must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit.Window must be > 0")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session.TTL must be > 0")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session.RedisPrefix must not be empty")
	}
	if c.Store.Timeout <= 0 {
		return errors.New("Store.Timeout must be > 0")
	}
	if c.Policy.MinLength < 1 {
		return errors.New("Policy.MinLength must be >= 1")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("Audit.BufferSize must be >= 0")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	// All fields are value types; a shallow copy is a deep copy.
	return cfg
}
