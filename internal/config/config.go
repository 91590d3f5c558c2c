package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	AppVersion string `mapstructure:"APP_VERSION"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	CORSOrigins  []string `mapstructure:"-"`
	AdminAPIKeys []string `mapstructure:"-"`
	// TrustedProxies lists the CIDRs or addresses allowed to set
	// X-Forwarded-For. Empty means the socket address identifies the client.
	TrustedProxies []string `mapstructure:"-"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`

	RateLimitEnabled         bool `mapstructure:"RATE_LIMIT_ENABLED"`
	RateLimitBurst           int  `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitPerMinute       int  `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitCleanupInterval int  `mapstructure:"RATE_LIMIT_CLEANUP_INTERVAL"` // seconds

	CacheEnabled bool `mapstructure:"CACHE_ENABLED"`
	CacheTTL     int  `mapstructure:"CACHE_TTL"` // seconds

	RequestTimeout      int `mapstructure:"REQUEST_TIMEOUT"`       // seconds
	HealthCheckInterval int `mapstructure:"HEALTH_CHECK_INTERVAL"` // seconds

	ServiceLogsRetentionDays int  `mapstructure:"SERVICE_LOGS_RETENTION_DAYS"`
	AutoCleanupEnabled       bool `mapstructure:"AUTO_CLEANUP_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "APP_VERSION",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"CORS_ORIGINS", "ADMIN_API_KEYS", "TRUSTED_PROXIES", "BODY_LIMIT",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_BURST", "RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_CLEANUP_INTERVAL",
	"CACHE_ENABLED", "CACHE_TTL",
	"REQUEST_TIMEOUT", "HEALTH_CHECK_INTERVAL",
	"SERVICE_LOGS_RETENTION_DAYS", "AUTO_CLEANUP_ENABLED",
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8001")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	v.SetDefault("RATE_LIMIT_CLEANUP_INTERVAL", 60)
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", 300)
	v.SetDefault("REQUEST_TIMEOUT", 30)
	v.SetDefault("HEALTH_CHECK_INTERVAL", 30)
	v.SetDefault("SERVICE_LOGS_RETENTION_DAYS", 90)
	v.SetDefault("AUTO_CLEANUP_ENABLED", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.AdminAPIKeys = splitList(v.GetString("ADMIN_API_KEYS"))
	cfg.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))
	return cfg, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TrustedProxyNets parses TrustedProxies. A bare address is taken as a
// single-host range.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c *Config) HealthCheckIntervalDuration() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Second
}

func (c *Config) RateLimitCleanupDuration() time.Duration {
	return time.Duration(c.RateLimitCleanupInterval) * time.Second
}

func (c *Config) RetentionDuration() time.Duration {
	return time.Duration(c.ServiceLogsRetentionDays) * 24 * time.Hour
}

// Validate rejects configurations the server cannot run safely with.
// Production requires a database and at least one admin key.
func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if len(c.AdminAPIKeys) == 0 {
			errs = append(errs, errors.New("ADMIN_API_KEYS is required in production"))
		}
	}
	positive := []struct {
		name string
		v    int
	}{
		{"RATE_LIMIT_BURST", c.RateLimitBurst},
		{"RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute},
		{"RATE_LIMIT_CLEANUP_INTERVAL", c.RateLimitCleanupInterval},
		{"CACHE_TTL", c.CacheTTL},
		{"REQUEST_TIMEOUT", c.RequestTimeout},
		{"HEALTH_CHECK_INTERVAL", c.HealthCheckInterval},
		{"SERVICE_LOGS_RETENTION_DAYS", c.ServiceLogsRetentionDays},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.v))
		}
	}
	if c.RateLimitBurst > c.RateLimitPerMinute && c.RateLimitPerMinute > 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST (%d) cannot exceed RATE_LIMIT_PER_MINUTE (%d)",
			c.RateLimitBurst, c.RateLimitPerMinute))
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		errs = append(errs, err)
	}
	if c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}
	return errors.Join(errs...)
}
