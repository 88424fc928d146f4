package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config.toml
const EnvPrefix = "INVREPORT"

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Report       ReportConfig
	InventoryAPI InventoryAPIConfig
	Storage      StorageConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Telemetry    TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `validate:"required"`
	Env  string `validate:"required"`
	Port string `validate:"required,numeric"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn warning error fatal"`
	Format string `validate:"oneof=json console"`
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodySize  int64 `validate:"gt=0"`

	// RunRateLimit caps run requests per caller per minute; 0 turns it off
	RunRateLimit int `validate:"gte=0"`
	RunRateBurst int `validate:"gte=0"`
}

// RepConfig is a sales rep that receives the report by default
type RepConfig struct {
	Name  string `mapstructure:"name" validate:"required"`
	Email string `mapstructure:"email" validate:"required,email"`
}

// ReportConfig holds the report delivery settings.
// Cadence and TimeZone are labels for the surrounding scheduler; the time zone
// only decides which day "today" is when a run has no as-of date.
type ReportConfig struct {
	Enabled           bool
	Cadence           string      `validate:"oneof=daily weekly monthly"`
	TimeZone          string      `validate:"required"`
	APIBaseURL        string      `validate:"required,url"`
	DefaultRecipients []string    `validate:"max=500,dive,email"`
	Reps              []RepConfig `validate:"dive"`

	// IdempotencyTTL is how long a delivered run's idempotency key blocks
	// another run with the same key
	IdempotencyTTL time.Duration `validate:"gte=0"`
}

// Location loads the configured time zone
func (r ReportConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.TimeZone)
}

// InventoryAPIConfig holds settings for the external inventory API client
type InventoryAPIConfig struct {
	Timeout  time.Duration `validate:"gt=0"`
	APIToken string
}

// StorageConfig holds settings for the message outbox
type StorageConfig struct {
	Driver       string `validate:"oneof=memory s3"` // memory or s3
	Endpoint     string // S3 endpoint URL (e.g., "http://localhost:9000")
	Region       string
	Bucket       string `validate:"required_if=Driver s3"`
	AccessKey    string `validate:"required_if=Driver s3"`
	SecretKey    string `validate:"required_if=Driver s3"`
	UsePathStyle bool   // Path-style addressing, needed by MinIO and RustFS
	UseSSL       bool
	KeyPrefix    string
}

// RedisConfig holds the connection used for run idempotency keys.
// An empty Addr keeps the keys in process memory.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int `validate:"gte=0"`
}

// JWTConfig holds the settings for bearer tokens on the run endpoint.
// An empty Secret leaves the endpoint open.
type JWTConfig struct {
	Secret          string `validate:"omitempty,min=32"`
	Issuer          string
	TokenExpiration time.Duration `validate:"gte=0"`
}

// Enabled reports whether run requests must carry a token
func (j JWTConfig) Enabled() bool {
	return j.Secret != ""
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	Enabled               bool
	CollectorEndpoint     string  `validate:"required_if=Enabled true"`
	SamplingRatio         float64 `validate:"gte=0,lte=1"`
	Insecure              bool
	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	LogsEnabled           bool
	LogsLevel             string `validate:"omitempty,oneof=debug info warn error"`
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with INVREPORT_ prefix (e.g., INVREPORT_REPORT_ENABLED)
// 2. config.toml in ., ./config or /etc/inventory-report
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/inventory-report")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

// LoadFile loads configuration from an explicit file; environment variables
// still take precedence.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Zero is meaningful for these, so their defaults cannot live in
	// applyDefaults
	v.SetDefault("report.enabled", true)
	v.SetDefault("http.run_rate_limit", 30)
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			MaxBodySize:  v.GetInt64("http.max_body_size"),
			RunRateLimit: v.GetInt("http.run_rate_limit"),
			RunRateBurst: v.GetInt("http.run_rate_burst"),
		},
		Report: ReportConfig{
			Enabled:           v.GetBool("report.enabled"),
			Cadence:           v.GetString("report.cadence"),
			TimeZone:          v.GetString("report.time_zone"),
			APIBaseURL:        v.GetString("report.api_base_url"),
			DefaultRecipients: v.GetStringSlice("report.default_recipients"),
			IdempotencyTTL:    v.GetDuration("report.idempotency_ttl"),
		},
		InventoryAPI: InventoryAPIConfig{
			Timeout:  v.GetDuration("inventory_api.timeout"),
			APIToken: v.GetString("inventory_api.api_token"),
		},
		Storage: StorageConfig{
			Driver:       v.GetString("storage.driver"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			KeyPrefix:    v.GetString("storage.key_prefix"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			Issuer:          v.GetString("jwt.issuer"),
			TokenExpiration: v.GetDuration("jwt.token_expiration"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			LogsLevel:             v.GetString("telemetry.logs_level"),
		},
	}

	if err := v.UnmarshalKey("report.reps", &cfg.Report.Reps); err != nil {
		return nil, fmt.Errorf("invalid report.reps: %w", err)
	}

	applyDefaults(cfg, v.IsSet("report.default_recipients"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config, recipientsSet bool) {
	if cfg.App.Name == "" {
		cfg.App.Name = "inventory-report"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.Report.Cadence == "" {
		cfg.Report.Cadence = "weekly"
	}
	if cfg.Report.TimeZone == "" {
		cfg.Report.TimeZone = "UTC"
	}
	if cfg.Report.APIBaseURL == "" {
		cfg.Report.APIBaseURL = "https://api.example.com"
	}
	// An explicitly empty list means no default recipients
	if !recipientsSet && len(cfg.Report.DefaultRecipients) == 0 {
		cfg.Report.DefaultRecipients = []string{"rep@example.com"}
	}
	if cfg.Report.IdempotencyTTL == 0 {
		cfg.Report.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.InventoryAPI.Timeout == 0 {
		cfg.InventoryAPI.Timeout = 10 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "outbox"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "inventory-report"
	}
	if cfg.JWT.TokenExpiration == 0 {
		cfg.JWT.TokenExpiration = time.Hour
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = "info"
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := c.Report.Location(); err != nil {
		return fmt.Errorf("report.time_zone %q is not a valid IANA time zone: %w", c.Report.TimeZone, err)
	}

	if (c.Telemetry.MetricsEnabled || c.Telemetry.LogsEnabled) && c.Telemetry.CollectorEndpoint == "" {
		return fmt.Errorf("telemetry.collector_endpoint is required when metrics or logs export is enabled")
	}

	if c.App.Env == "production" && c.Storage.Driver == "memory" {
		return fmt.Errorf("storage.driver must be s3 in production")
	}
	return nil
}
