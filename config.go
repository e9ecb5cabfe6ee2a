package authgate

import (
	"errors"
	"time"
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured before [Builder.Build] and
// then treated as immutable.
type Config struct {
	Token    TokenConfig
	Watchdog WatchdogConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the persisted token record.
type TokenConfig struct {
	// RedisPrefix namespaces record keys when the Redis-backed store is
	// built via Builder.WithRedis.
	RedisPrefix string
	// DeviceID selects the storage slot this controller hydrates from.
	// One controller instance owns one slot.
	DeviceID string
	// PersistGrace keeps the record alive past token expiry so a hydration
	// racing the expiry still observes the record instead of redis.Nil.
	PersistGrace time.Duration
}

/*
====================================
WATCHDOG CONFIG
====================================
*/

// WatchdogConfig controls the expiry watchdog. A single controller-owned
// timer recomputes time-to-expiry each tick; there is no second poller.
type WatchdogConfig struct {
	Enabled bool
	// Interval between recomputations.
	Interval time.Duration
	// WarnBefore is the remaining-lifetime threshold that triggers a single
	// WatchWarning event per session.
	WarnBefore time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events under backpressure instead of blocking the
	// emitting operation. Dropped counts are observable via AuditDropped.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			RedisPrefix:  "lmtok",
			DeviceID:     "default",
			PersistGrace: 24 * time.Hour,
		},
		Watchdog: WatchdogConfig{
			Enabled:    true,
			Interval:   time.Second,
			WarnBefore: 2 * time.Minute,
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

func cloneConfig(cfg Config) Config {
	// All fields are value types today; the indirection stays so adding
	// reference fields later cannot silently alias builder state.
	return cfg
}

// Validate checks configuration invariants before Build wires the controller.
func (c Config) Validate() error {
	if c.Token.DeviceID == "" {
		return errors.New("Token.DeviceID must not be empty")
	}
	if c.Token.PersistGrace < 0 {
		return errors.New("Token.PersistGrace must not be negative")
	}
	if c.Watchdog.Enabled {
		if c.Watchdog.Interval <= 0 {
			return errors.New("Watchdog.Interval must be positive")
		}
		if c.Watchdog.WarnBefore <= 0 {
			return errors.New("Watchdog.WarnBefore must be positive")
		}
		if c.Watchdog.WarnBefore <= c.Watchdog.Interval {
			return errors.New("Watchdog.WarnBefore must exceed Watchdog.Interval")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}
	return nil
}
