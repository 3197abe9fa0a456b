package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Duplicate event policies for the anomaly detector
const (
	DuplicatePolicyAlways        = "always"
	DuplicatePolicyOncePerWindow = "once_per_window"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Version string `mapstructure:"version"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`

	TLS struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Password     PasswordConfig     `mapstructure:"password"`
	Tokens       TokenConfig        `mapstructure:"tokens"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	// AdminRoles lists the token roles allowed on the security review routes
	AdminRoles []string `mapstructure:"admin_roles"`
}

// PasswordConfig holds password hashing configuration
type PasswordConfig struct {
	Argon2Memory      uint32 `mapstructure:"argon2_memory"`
	Argon2Iterations  uint32 `mapstructure:"argon2_iterations"`
	Argon2Parallelism uint8  `mapstructure:"argon2_parallelism"`
	MinLength         int    `mapstructure:"min_length"`
}

// TokenConfig holds JWT token configuration
type TokenConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	GlobalLimit  int           `mapstructure:"global_limit"`
	GlobalWindow time.Duration `mapstructure:"global_window"`
	LoginLimit   int           `mapstructure:"login_limit"`
	LoginWindow  time.Duration `mapstructure:"login_window"`
}

// MonitorConfig holds the thresholds and timing of the security monitor
type MonitorConfig struct {
	// FailureWindow is the trailing window failures are counted over
	FailureWindow time.Duration `mapstructure:"failure_window"`

	IPMediumThreshold    int `mapstructure:"ip_medium_threshold"`
	IPHighThreshold      int `mapstructure:"ip_high_threshold"`
	EmailMediumThreshold int `mapstructure:"email_medium_threshold"`
	EmailHighThreshold   int `mapstructure:"email_high_threshold"`

	// SlowResponseThreshold flags responses slower than this as suspicious
	SlowResponseThreshold time.Duration `mapstructure:"slow_response_threshold"`

	// AutoBlockThreshold is the failure count per address that triggers a block
	AutoBlockThreshold int           `mapstructure:"autoblock_threshold"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	SweepLockTTL       time.Duration `mapstructure:"sweep_lock_ttl"`

	// BlockCacheTTL bounds how stale the access guard's cached block state may be.
	// Zero disables the cache.
	BlockCacheTTL time.Duration `mapstructure:"block_cache_ttl"`

	// DuplicatePolicy is "always" or "once_per_window"
	DuplicatePolicy string `mapstructure:"duplicate_policy"`

	// WriteTimeout bounds background monitoring writes
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AlertsConfig holds outbound alerting configuration
type AlertsConfig struct {
	Email EmailAlertConfig `mapstructure:"email"`
}

// EmailAlertConfig holds e-mail alert configuration
type EmailAlertConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Recipients receive an e-mail for each event at or above MinSeverity
	Recipients  []string `mapstructure:"recipients"`
	MinSeverity string   `mapstructure:"min_severity"`
	AppName     string   `mapstructure:"app_name"`
	// Gmail holds Gmail-specific configuration
	Gmail GmailEmailConfig `mapstructure:"gmail"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
}

// KafkaConfig holds the SIEM forwarding configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/secmon")

	SetDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("SECMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects monitor settings that cannot work together
func (c *Config) Validate() error {
	m := c.Monitor
	var errs []error

	if m.FailureWindow <= 0 {
		errs = append(errs, errors.New("monitor.failure_window must be positive"))
	}
	if m.SweepInterval <= 0 {
		errs = append(errs, errors.New("monitor.sweep_interval must be positive"))
	}
	if m.IPMediumThreshold <= 0 || m.IPHighThreshold < m.IPMediumThreshold {
		errs = append(errs, errors.New("monitor ip thresholds must satisfy 0 < medium <= high"))
	}
	if m.EmailMediumThreshold <= 0 || m.EmailHighThreshold < m.EmailMediumThreshold {
		errs = append(errs, errors.New("monitor email thresholds must satisfy 0 < medium <= high"))
	}
	if m.AutoBlockThreshold <= 0 {
		errs = append(errs, errors.New("monitor.autoblock_threshold must be positive"))
	}
	switch m.DuplicatePolicy {
	case DuplicatePolicyAlways, DuplicatePolicyOncePerWindow:
	default:
		errs = append(errs, fmt.Errorf("monitor.duplicate_policy %q is not supported", m.DuplicatePolicy))
	}
	// a limiter tighter than the auto-block threshold would turn a burst of
	// failures into 429s before enough attempts were recorded to block
	if rl := c.Security.RateLimiting; rl.Enabled && m.AutoBlockThreshold > 0 {
		if rl.LoginLimit < m.AutoBlockThreshold {
			errs = append(errs, fmt.Errorf("security.rate_limiting.login_limit %d is below monitor.autoblock_threshold %d",
				rl.LoginLimit, m.AutoBlockThreshold))
		}
		if rl.GlobalLimit < m.AutoBlockThreshold {
			errs = append(errs, fmt.Errorf("security.rate_limiting.global_limit %d is below monitor.autoblock_threshold %d",
				rl.GlobalLimit, m.AutoBlockThreshold))
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}

	return errors.Join(errs...)
}

// SetDefaults registers the default value of every setting
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.trust_proxy_headers", false)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "secmon")
	v.SetDefault("database.user", "secmon")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.password.argon2_memory", 65536)
	v.SetDefault("security.password.argon2_iterations", 3)
	v.SetDefault("security.password.argon2_parallelism", 4)
	v.SetDefault("security.password.min_length", 12)

	v.SetDefault("security.tokens.secret", "")
	v.SetDefault("security.tokens.issuer", "secmon")
	v.SetDefault("security.tokens.access_token_ttl", "24h")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.global_limit", 100)
	v.SetDefault("security.rate_limiting.global_window", "15m")
	v.SetDefault("security.rate_limiting.login_limit", 50)
	v.SetDefault("security.rate_limiting.login_window", "15m")

	v.SetDefault("security.admin_roles", []string{"super_admin"})

	// Monitor defaults
	v.SetDefault("monitor.failure_window", "1h")
	v.SetDefault("monitor.ip_medium_threshold", 10)
	v.SetDefault("monitor.ip_high_threshold", 20)
	v.SetDefault("monitor.email_medium_threshold", 5)
	v.SetDefault("monitor.email_high_threshold", 10)
	v.SetDefault("monitor.slow_response_threshold", "10s")
	v.SetDefault("monitor.autoblock_threshold", 50)
	v.SetDefault("monitor.sweep_interval", "10m")
	v.SetDefault("monitor.sweep_lock_ttl", "5m")
	v.SetDefault("monitor.block_cache_ttl", "30s")
	v.SetDefault("monitor.duplicate_policy", DuplicatePolicyAlways)
	v.SetDefault("monitor.write_timeout", "5s")

	// Alert defaults
	v.SetDefault("alerts.email.enabled", false)
	v.SetDefault("alerts.email.recipients", []string{})
	v.SetDefault("alerts.email.min_severity", "critical")
	v.SetDefault("alerts.email.app_name", "Inventory Security Monitor")
	v.SetDefault("alerts.email.gmail.sender_address", "")
	v.SetDefault("alerts.email.gmail.sender_name", "Security Monitor")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "security-events")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
