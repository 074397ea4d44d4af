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
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Log            LogConfig
	HTTP           HTTPConfig
	Telemetry      TelemetryConfig
	Reconciliation ReconciliationConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
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

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration // cached summary lifetime
}

// TelemetryConfig holds OpenTelemetry export settings. Traces and
// metrics share a collector endpoint.
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	MetricsInterval   time.Duration
	Insecure          bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// ReconciliationConfig holds the matching policy knobs. These map onto
// the engine's domain config; thresholds and weights stay on their
// documented defaults unless operators override them.
type ReconciliationConfig struct {
	Currency           string
	AutoMatchThreshold float64
	ReviewThreshold    float64
	AmountTolerance    float64
	DateWindowDays     int
	LargeAmountLimit   float64
	StaleAgeDays       int
	NearEqualEpsilon   float64
	ReferenceWeight    float64
	AmountWeight       float64
	DateWeight         float64
	CustomerWeight     float64
	WorkerCount        int           // 0 = GOMAXPROCS
	RunTimeout         time.Duration // hard cap on a single run
	MaxPaymentsPerRun  int
	MaxInvoicesPerRun  int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with FINREC_ prefix (e.g., FINREC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("FINREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Zero is a legal operator choice for these knobs (exact-equality
	// matching, flag every unmatched payment), so they default through
	// viper instead of a zero-value check after the fact.
	v.SetDefault("reconciliation.amount_tolerance", 0.0)
	v.SetDefault("reconciliation.large_amount_limit", 10000.0)
	v.SetDefault("reconciliation.near_equal_epsilon", 1.0)

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
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
		Reconciliation: ReconciliationConfig{
			Currency:           v.GetString("reconciliation.currency"),
			AutoMatchThreshold: v.GetFloat64("reconciliation.auto_match_threshold"),
			ReviewThreshold:    v.GetFloat64("reconciliation.review_threshold"),
			AmountTolerance:    v.GetFloat64("reconciliation.amount_tolerance"),
			DateWindowDays:     v.GetInt("reconciliation.date_window_days"),
			LargeAmountLimit:   v.GetFloat64("reconciliation.large_amount_limit"),
			StaleAgeDays:       v.GetInt("reconciliation.stale_age_days"),
			NearEqualEpsilon:   v.GetFloat64("reconciliation.near_equal_epsilon"),
			ReferenceWeight:    v.GetFloat64("reconciliation.reference_weight"),
			AmountWeight:       v.GetFloat64("reconciliation.amount_weight"),
			DateWeight:         v.GetFloat64("reconciliation.date_weight"),
			CustomerWeight:     v.GetFloat64("reconciliation.customer_weight"),
			WorkerCount:        v.GetInt("reconciliation.worker_count"),
			RunTimeout:         v.GetDuration("reconciliation.run_timeout"),
			MaxPaymentsPerRun:  v.GetInt("reconciliation.max_payments_per_run"),
			MaxInvoicesPerRun:  v.GetInt("reconciliation.max_invoices_per_run"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "finrec-backend"
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
		cfg.Database.DBName = "finrec"
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
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 10 * time.Minute
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
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 32 << 20 // feeds arrive inline, allow 32MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Reconciliation.Currency == "" {
		cfg.Reconciliation.Currency = "KES"
	}
	if cfg.Reconciliation.AutoMatchThreshold == 0 {
		cfg.Reconciliation.AutoMatchThreshold = 0.85
	}
	if cfg.Reconciliation.ReviewThreshold == 0 {
		cfg.Reconciliation.ReviewThreshold = 0.50
	}
	if cfg.Reconciliation.DateWindowDays == 0 {
		cfg.Reconciliation.DateWindowDays = 90
	}
	if cfg.Reconciliation.StaleAgeDays == 0 {
		cfg.Reconciliation.StaleAgeDays = 30
	}
	if cfg.Reconciliation.ReferenceWeight == 0 {
		cfg.Reconciliation.ReferenceWeight = 0.40
	}
	if cfg.Reconciliation.AmountWeight == 0 {
		cfg.Reconciliation.AmountWeight = 0.35
	}
	if cfg.Reconciliation.DateWeight == 0 {
		cfg.Reconciliation.DateWeight = 0.15
	}
	if cfg.Reconciliation.CustomerWeight == 0 {
		cfg.Reconciliation.CustomerWeight = 0.10
	}
	if cfg.Reconciliation.RunTimeout == 0 {
		cfg.Reconciliation.RunTimeout = 5 * time.Minute
	}
	if cfg.Reconciliation.MaxPaymentsPerRun == 0 {
		cfg.Reconciliation.MaxPaymentsPerRun = 100000
	}
	if cfg.Reconciliation.MaxInvoicesPerRun == 0 {
		cfg.Reconciliation.MaxInvoicesPerRun = 100000
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
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

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	r := c.Reconciliation
	if r.AutoMatchThreshold < 0 || r.AutoMatchThreshold > 1 {
		return fmt.Errorf("reconciliation.auto_match_threshold must be between 0.0 and 1.0, got %f", r.AutoMatchThreshold)
	}
	if r.ReviewThreshold < 0 || r.ReviewThreshold > 1 {
		return fmt.Errorf("reconciliation.review_threshold must be between 0.0 and 1.0, got %f", r.ReviewThreshold)
	}
	if r.ReviewThreshold > r.AutoMatchThreshold {
		return fmt.Errorf("reconciliation.review_threshold (%f) cannot exceed reconciliation.auto_match_threshold (%f)",
			r.ReviewThreshold, r.AutoMatchThreshold)
	}
	if r.WorkerCount < 0 {
		return fmt.Errorf("reconciliation.worker_count cannot be negative")
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

// Addr returns the host:port address for the Redis client.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
