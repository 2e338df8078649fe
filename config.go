package ygggo_pool

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	gge "github.com/yggai/ygggo_env"
)

// PoolConfig holds sizing and idle-eviction settings for the pool.
type PoolConfig struct {
	// MaxConnections bounds how many connections may exist at once,
	// counting idle, leased and in-flight creations. Default 10.
	MaxConnections int
	// IdleTimeout closes connections unused longer than this.
	// Zero disables idle eviction.
	IdleTimeout time.Duration
	// SweepInterval is how often the background sweep scans the idle set.
	// Defaults to half the idle timeout.
	SweepInterval time.Duration
}

// CacheConfig holds per-connection prepared statement cache settings.
type CacheConfig struct {
	// Enabled turns statement caching on. Default true.
	Enabled bool
	// MaxSize bounds the number of cached statements per connection. Default 256.
	MaxSize int
	// MaxSQLLength skips caching for SQL text longer than this. Default 2048.
	MaxSQLLength int
	// Filter, when set, must return true for a query to be cached.
	Filter func(query string) bool
}

// RetryConfig controls connection establishment retries.
type RetryConfig struct {
	// ReconnectAttempts is the number of full retry cycles after the initial
	// one. 0 means try every address once with no retry; -1 retries forever.
	ReconnectAttempts int
	// ReconnectInterval is the fixed pause between retry cycles. Default 1s.
	ReconnectInterval time.Duration
}

// Config holds the full library configuration.
type Config struct {
	// Addresses is the candidate server list, tried in round-robin rotation.
	// It must contain at least one entry.
	Addresses []Address

	Username string
	Password string
	Database string
	// Params are extra driver parameters (e.g. "parseTime": "true").
	Params map[string]string

	Pool  PoolConfig
	Cache CacheConfig
	Retry RetryConfig

	Logging   LoggingConfig
	Telemetry TelemetryConfig
	Metrics   MetricsConfig

	// Connector overrides the default MySQL connector. Used by tests and by
	// callers that bring their own transport or protocol implementation.
	Connector Connector
}

const (
	defaultMaxConnections    = 10
	defaultCacheSize         = 256
	defaultCacheMaxSQLLength = 2048
	defaultReconnectInterval = time.Second
)

func (c *Config) validate() error {
	if len(c.Addresses) == 0 {
		return ErrNoAddresses
	}
	for _, a := range c.Addresses {
		if a.Host == "" {
			return fmt.Errorf("ygggo_pool: address %q has empty host", a)
		}
	}
	if c.Retry.ReconnectAttempts < -1 {
		return fmt.Errorf("ygggo_pool: reconnect attempts must be >= -1, got %d", c.Retry.ReconnectAttempts)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Pool.MaxConnections <= 0 {
		c.Pool.MaxConnections = defaultMaxConnections
	}
	if c.Pool.SweepInterval <= 0 && c.Pool.IdleTimeout > 0 {
		c.Pool.SweepInterval = c.Pool.IdleTimeout / 2
	}
	if !c.Cache.Enabled && c.Cache.MaxSize == 0 && c.Cache.MaxSQLLength == 0 && c.Cache.Filter == nil {
		// Untouched cache config: caching is on by default. An explicit
		// Enabled: false alongside any other setting stays off.
		c.Cache.Enabled = true
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = defaultCacheSize
	}
	if c.Cache.MaxSQLLength <= 0 {
		c.Cache.MaxSQLLength = defaultCacheMaxSQLLength
	}
	if c.Retry.ReconnectInterval <= 0 {
		c.Retry.ReconnectInterval = defaultReconnectInterval
	}
}

// NewConfigEnv builds a Config from YGGGO_POOL_* environment variables.
// A .env file in the working directory is loaded first via ygggo_env.
//
// Recognized variables:
//
//	YGGGO_POOL_ADDRESSES          comma-separated host:port list
//	YGGGO_POOL_USERNAME           user name
//	YGGGO_POOL_PASSWORD           password
//	YGGGO_POOL_DATABASE           schema name
//	YGGGO_POOL_PARAMS             url-encoded driver params (k=v&k=v)
//	YGGGO_POOL_MAX_CONNECTIONS    pool size
//	YGGGO_POOL_IDLE_TIMEOUT       Go duration, e.g. 5m
//	YGGGO_POOL_RECONNECT_ATTEMPTS retry cycles, -1 for forever
//	YGGGO_POOL_RECONNECT_INTERVAL Go duration, e.g. 500ms
//	YGGGO_POOL_CACHE_SIZE         statements per connection, 0 disables
func NewConfigEnv() (Config, error) {
	gge.LoadEnv()

	cfg := Config{
		Username: os.Getenv("YGGGO_POOL_USERNAME"),
		Password: os.Getenv("YGGGO_POOL_PASSWORD"),
		Database: os.Getenv("YGGGO_POOL_DATABASE"),
	}

	addrs, err := parseAddresses(os.Getenv("YGGGO_POOL_ADDRESSES"))
	if err != nil {
		return Config{}, err
	}
	cfg.Addresses = addrs

	if raw := os.Getenv("YGGGO_POOL_PARAMS"); raw != "" {
		vals, err := url.ParseQuery(raw)
		if err != nil {
			return Config{}, fmt.Errorf("ygggo_pool: bad YGGGO_POOL_PARAMS: %w", err)
		}
		cfg.Params = make(map[string]string, len(vals))
		for k := range vals {
			cfg.Params[k] = vals.Get(k)
		}
	}

	if v := os.Getenv("YGGGO_POOL_MAX_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ygggo_pool: bad YGGGO_POOL_MAX_CONNECTIONS: %w", err)
		}
		cfg.Pool.MaxConnections = n
	}
	if v := os.Getenv("YGGGO_POOL_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("ygggo_pool: bad YGGGO_POOL_IDLE_TIMEOUT: %w", err)
		}
		cfg.Pool.IdleTimeout = d
	}
	if v := os.Getenv("YGGGO_POOL_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ygggo_pool: bad YGGGO_POOL_RECONNECT_ATTEMPTS: %w", err)
		}
		cfg.Retry.ReconnectAttempts = n
	}
	if v := os.Getenv("YGGGO_POOL_RECONNECT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("ygggo_pool: bad YGGGO_POOL_RECONNECT_INTERVAL: %w", err)
		}
		cfg.Retry.ReconnectInterval = d
	}
	if v := os.Getenv("YGGGO_POOL_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ygggo_pool: bad YGGGO_POOL_CACHE_SIZE: %w", err)
		}
		cfg.Cache.Enabled = n > 0
		cfg.Cache.MaxSize = n
	} else {
		cfg.Cache.Enabled = true
	}

	return cfg, nil
}

// parseAddresses splits a "host:port,host:port" list. A bare host defaults
// to port 3306.
func parseAddresses(raw string) ([]Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoAddresses
	}
	parts := strings.Split(raw, ",")
	addrs := make([]Address, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		host, portStr, found := strings.Cut(p, ":")
		if !found {
			addrs = append(addrs, Address{Host: p, Port: 3306})
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("ygggo_pool: bad address %q: %w", p, err)
		}
		addrs = append(addrs, Address{Host: host, Port: port})
	}
	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}
	return addrs, nil
}
