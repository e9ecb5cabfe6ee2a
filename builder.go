package authgate

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/localmart/authgate/token"
)

// Builder assembles a Controller. Zero value is not usable; start with New.
type Builder struct {
	config    Config
	store     token.Store
	client    AuthClient
	auditSink AuditSink
	built     bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration tree. Call it before the
// other options so they are not overwritten.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis wires a Redis-backed token store using the configured key prefix.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.store = token.NewRedisStore(client, b.config.Token.RedisPrefix)
	return b
}

// WithTokenStore wires a custom token store, replacing any earlier WithRedis.
func (b *Builder) WithTokenStore(store token.Store) *Builder {
	b.store = store
	return b
}

// WithAuthClient wires the auth service client. Required.
func (b *Builder) WithAuthClient(client AuthClient) *Builder {
	b.client = client
	return b
}

// WithAuditSink wires an audit sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process metrics registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles hydrate latency histogram collection.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Controller in the loading
// state. A Builder builds once.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, fmt.Errorf("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.client == nil {
		return nil, ErrAuthClientRequired
	}
	if b.store == nil {
		return nil, ErrTokenStoreRequired
	}
	b.built = true

	c := &Controller{
		config:  b.config,
		store:   b.store,
		client:  b.client,
		loading: true,
		subs:    make(map[uint64]func(Snapshot)),
		closed:  make(chan struct{}),
	}

	if b.config.Metrics.Enabled {
		c.metrics = NewMetrics(b.config.Metrics)
	}
	if b.config.Audit.Enabled && b.auditSink != nil {
		c.audit = newAuditDispatcher(b.config.Audit, b.auditSink)
	}

	return c, nil
}
