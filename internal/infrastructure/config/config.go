package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Marketplace MarketplaceConfig
	RateLimit   RateLimitConfig
	Sync        SyncConfig
	Telemetry   TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AccountConfig holds the credentials and endpoint for one seller account
type AccountConfig struct {
	BaseURL        string
	Username       string
	Password       string
	TimeoutSeconds int
}

// MarketplaceConfig holds per-account marketplace API settings
type MarketplaceConfig struct {
	Main AccountConfig
	FBE  AccountConfig
}

// RateBudget holds the request budgets of a single resource class
type RateBudget struct {
	PerSecond int `mapstructure:"per_second"`
	PerMinute int `mapstructure:"per_minute"`
}

// RateLimitConfig holds per-resource-class request budgets. The set of
// classes is open: the remote API has introduced new classes before.
type RateLimitConfig struct {
	Classes map[string]RateBudget `mapstructure:"classes"`
}

// SyncConfig holds sync engine tuning
type SyncConfig struct {
	PageSize       int
	MaxPages       int
	Timeout        time.Duration // wall clock per sync run
	MaxTimeout     time.Duration // hard ceiling on Timeout
	OrderBatchSize int
	ReaperAge      time.Duration // minimum age before a running row is reaped
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SELLERBRIDGE_ prefix (e.g., SELLERBRIDGE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("SELLERBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
		Marketplace: MarketplaceConfig{
			Main: AccountConfig{
				BaseURL:        v.GetString("marketplace.main.base_url"),
				Username:       v.GetString("marketplace.main.username"),
				Password:       v.GetString("marketplace.main.password"),
				TimeoutSeconds: v.GetInt("marketplace.main.timeout_seconds"),
			},
			FBE: AccountConfig{
				BaseURL:        v.GetString("marketplace.fbe.base_url"),
				Username:       v.GetString("marketplace.fbe.username"),
				Password:       v.GetString("marketplace.fbe.password"),
				TimeoutSeconds: v.GetInt("marketplace.fbe.timeout_seconds"),
			},
		},
		Sync: SyncConfig{
			PageSize:       v.GetInt("sync.page_size"),
			MaxPages:       v.GetInt("sync.max_pages"),
			Timeout:        v.GetDuration("sync.timeout"),
			MaxTimeout:     v.GetDuration("sync.max_timeout"),
			OrderBatchSize: v.GetInt("sync.order_batch_size"),
			ReaperAge:      v.GetDuration("sync.reaper_age"),
			RetryAttempts:  v.GetInt("sync.retry_attempts"),
			RetryBaseDelay: v.GetDuration("sync.retry_base_delay"),
			RetryMaxDelay:  v.GetDuration("sync.retry_max_delay"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	if err := v.UnmarshalKey("ratelimit.classes", &cfg.RateLimit.Classes); err != nil {
		return nil, fmt.Errorf("error parsing rate limit classes: %w", err)
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sellerbridge"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "sellerbridge"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.Marketplace.Main.TimeoutSeconds == 0 {
		cfg.Marketplace.Main.TimeoutSeconds = 30
	}
	if cfg.Marketplace.FBE.TimeoutSeconds == 0 {
		cfg.Marketplace.FBE.TimeoutSeconds = 30
	}
	if cfg.RateLimit.Classes == nil {
		cfg.RateLimit.Classes = map[string]RateBudget{}
	}
	// The remote API grants order endpoints a higher budget than everything else.
	if _, ok := cfg.RateLimit.Classes["orders"]; !ok {
		cfg.RateLimit.Classes["orders"] = RateBudget{PerSecond: 12, PerMinute: 720}
	}
	if _, ok := cfg.RateLimit.Classes["other"]; !ok {
		cfg.RateLimit.Classes["other"] = RateBudget{PerSecond: 3, PerMinute: 180}
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 100
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 500
	}
	if cfg.Sync.MaxTimeout == 0 {
		cfg.Sync.MaxTimeout = 900 * time.Second
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = 600 * time.Second
	}
	if cfg.Sync.OrderBatchSize == 0 {
		cfg.Sync.OrderBatchSize = 100
	}
	if cfg.Sync.ReaperAge == 0 {
		// At least twice the run ceiling so the reaper never races a
		// legitimately slow run.
		cfg.Sync.ReaperAge = 2 * cfg.Sync.MaxTimeout
	}
	if cfg.Sync.RetryAttempts == 0 {
		cfg.Sync.RetryAttempts = 3
	}
	if cfg.Sync.RetryBaseDelay == 0 {
		cfg.Sync.RetryBaseDelay = time.Second
	}
	if cfg.Sync.RetryMaxDelay == 0 {
		cfg.Sync.RetryMaxDelay = 30 * time.Second
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "sellerbridge"
	}
	// Note: Insecure defaults to false for safety (TLS enabled by default)
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	for name, budget := range c.RateLimit.Classes {
		if budget.PerSecond <= 0 {
			return fmt.Errorf("ratelimit.classes.%s.per_second must be positive", name)
		}
		if budget.PerMinute <= 0 {
			return fmt.Errorf("ratelimit.classes.%s.per_minute must be positive", name)
		}
	}

	if c.Sync.PageSize < 1 || c.Sync.PageSize > 100 {
		return fmt.Errorf("sync.page_size must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.Timeout > c.Sync.MaxTimeout {
		return fmt.Errorf("sync.timeout (%s) cannot exceed sync.max_timeout (%s)",
			c.Sync.Timeout, c.Sync.MaxTimeout)
	}
	if c.Sync.ReaperAge < 2*c.Sync.Timeout {
		return fmt.Errorf("sync.reaper_age (%s) must be at least twice sync.timeout (%s)",
			c.Sync.ReaperAge, c.Sync.Timeout)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Marketplace.Main.Username == "" || c.Marketplace.FBE.Username == "" {
			return fmt.Errorf("marketplace credentials for both seller accounts are required in production")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
