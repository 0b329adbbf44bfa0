// Package config loads and validates gateway configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Upstreams   UpstreamsConfig   `mapstructure:"upstreams"`
	Composite   CompositeConfig   `mapstructure:"composite"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Store       StoreConfig       `mapstructure:"store"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// UpstreamsConfig holds per-upstream base URLs and enablement.
type UpstreamsConfig struct {
	PaleobioBaseURL   string `mapstructure:"paleobio_base_url"`
	PaleobioEnabled   bool   `mapstructure:"paleobio_enabled"`
	QuaternaryBaseURL string `mapstructure:"quaternary_base_url"`
	QuaternaryEnabled bool   `mapstructure:"quaternary_enabled"`
}

// CompositeConfig governs the composite driver's deadline tick loop and
// retry budget.
type CompositeConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	Retries        int `mapstructure:"retries"`
	TickMs         int `mapstructure:"tick_ms"`
}

// RateLimitConfig configures the per-upstream-host token bucket.
type RateLimitConfig struct {
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// StoreConfig controls access to the ruleset repository's backing
// relational database.
type StoreConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DiagnosticsConfig holds metadata for publish-subscribe diagnostics
// events and the archiver bucket backing replayed composite requests.
type DiagnosticsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMPOSITEGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("upstreams.paleobio_base_url", "https://paleobiodb.org/data1.2")
	v.SetDefault("upstreams.paleobio_enabled", true)
	v.SetDefault("upstreams.quaternary_base_url", "https://api.neotomadb.org/v2")
	v.SetDefault("upstreams.quaternary_enabled", true)
	v.SetDefault("composite.timeout_seconds", 30)
	v.SetDefault("composite.retries", 2)
	v.SetDefault("composite.tick_ms", 3000)
	v.SetDefault("ratelimit.default_rps", 5)
	v.SetDefault("ratelimit.default_burst", 2)
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("diagnostics.prefix", "composite-requests")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Composite.TimeoutSeconds <= 0 {
		return fmt.Errorf("composite.timeout_seconds must be > 0")
	}
	if c.Composite.Retries < 0 {
		return fmt.Errorf("composite.retries must be >= 0")
	}
	if !c.Upstreams.PaleobioEnabled && !c.Upstreams.QuaternaryEnabled {
		return fmt.Errorf("at least one of upstreams.paleobio_enabled or upstreams.quaternary_enabled must be true")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// Timeout converts the composite timeout knob into a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Composite.TimeoutSeconds) * time.Second
}

// TickPeriod converts the composite tick knob into a time.Duration.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.Composite.TickMs) * time.Millisecond
}
