package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	NATS        NATSConfig        `yaml:"nats"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Integration IntegrationConfig `yaml:"integration"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig represents Redis configuration. When Addr is empty the
// server keeps metrics snapshots in process memory instead.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatewayConfig represents collaboration gateway configuration
type GatewayConfig struct {
	// PresenceStaleAfter bounds how long a silent connection still
	// counts as present in room membership snapshots.
	PresenceStaleAfter time.Duration `yaml:"presence_stale_after"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	SendBuffer         int           `yaml:"send_buffer"`
	MaxMessageSize     int64         `yaml:"max_message_size"`
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval"`
}

// AnalyticsConfig represents metrics cache configuration
type AnalyticsConfig struct {
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	TrendThreshold float64       `yaml:"trend_threshold"`
	// TrendWindow bounds how far back records are fetched for
	// trend computation.
	TrendWindow time.Duration `yaml:"trend_window"`
}

// RateLimitConfig represents the per-tenant fixed-window limiter
type RateLimitConfig struct {
	Ceiling int           `yaml:"ceiling"`
	Window  time.Duration `yaml:"window"`
}

// IntegrationConfig represents outbound webhook configuration
type IntegrationConfig struct {
	Timeout  time.Duration   `yaml:"timeout"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig registers one notification endpoint for a tenant
type WebhookConfig struct {
	TenantID string `yaml:"tenant_id"`
	URL      string `yaml:"url"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		c.Redis.Addr = redisAddr
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// applyDefaults fills zero values with working defaults
func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "collab-server"
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Gateway.PresenceStaleAfter == 0 {
		c.Gateway.PresenceStaleAfter = 5 * time.Minute
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = 10 * time.Second
	}
	if c.Gateway.PongTimeout == 0 {
		c.Gateway.PongTimeout = 60 * time.Second
	}
	if c.Gateway.PingInterval == 0 {
		// Must be shorter than the pong timeout
		c.Gateway.PingInterval = 54 * time.Second
	}
	if c.Gateway.SendBuffer == 0 {
		c.Gateway.SendBuffer = 64
	}
	if c.Gateway.MaxMessageSize == 0 {
		c.Gateway.MaxMessageSize = 8 * 1024
	}
	if c.Gateway.MinRefreshInterval == 0 {
		c.Gateway.MinRefreshInterval = 5 * time.Second
	}

	if c.Analytics.CacheTTL == 0 {
		c.Analytics.CacheTTL = 30 * time.Second
	}
	if c.Analytics.TrendThreshold == 0 {
		c.Analytics.TrendThreshold = 0.05
	}
	if c.Analytics.TrendWindow == 0 {
		c.Analytics.TrendWindow = 90 * 24 * time.Hour
	}

	if c.RateLimit.Ceiling == 0 {
		c.RateLimit.Ceiling = 10
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}

	if c.Integration.Timeout == 0 {
		c.Integration.Timeout = 30 * time.Second
	}
}
