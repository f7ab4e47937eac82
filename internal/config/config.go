package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	MessageStore MessageStoreConfig `mapstructure:"message_store"`
	AI           AIConfig           `mapstructure:"ai"`
	Detection    DetectionConfig    `mapstructure:"detection"`
	Scan         ScanConfig         `mapstructure:"scan"`
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MessageStoreConfig configures the external message store API client.
type MessageStoreConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	PageSize     int           `mapstructure:"page_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// AIConfig configures the AI reviewer.
type AIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxReviewsPerRun  int           `mapstructure:"max_reviews_per_run"`
	MaxReviewsDaily   int           `mapstructure:"max_reviews_daily"`
	// EscalationLow/High bound the fused-score band in which the reviewer
	// is consulted during a periodic scan.
	EscalationLow  float64 `mapstructure:"escalation_low"`
	EscalationHigh float64 `mapstructure:"escalation_high"`
}

// DetectionConfig holds detector and fusion tuning. All thresholds live here
// so operators can retune without a code change.
type DetectionConfig struct {
	RulesFile        string           `mapstructure:"rules_file"`
	LearnedRulesFile string           `mapstructure:"learned_rules_file"`
	Behavioral       BehavioralConfig `mapstructure:"behavioral"`
	Fusion           FusionConfig     `mapstructure:"fusion"`
}

type BehavioralConfig struct {
	ShortMessageLength   int     `mapstructure:"short_message_length"`
	CapsRatioThreshold   float64 `mapstructure:"caps_ratio_threshold"`
	CapsMinLength        int     `mapstructure:"caps_min_length"`
	ExclamationThreshold int     `mapstructure:"exclamation_threshold"`
	KeywordThreshold     int     `mapstructure:"keyword_threshold"`
	MaxNationalDigits    int     `mapstructure:"max_national_digits"`
	ExpectedCountryCode  string  `mapstructure:"expected_country_code"`
}

type FusionConfig struct {
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
	HighThreshold     float64 `mapstructure:"high_threshold"`
	MediumThreshold   float64 `mapstructure:"medium_threshold"`
	FlagFloor         float64 `mapstructure:"flag_floor"`
}

// ScanConfig configures the scan jobs and the in-process scheduler.
type ScanConfig struct {
	PeriodicInterval time.Duration `mapstructure:"periodic_interval"`
	LookbackWindow   time.Duration `mapstructure:"lookback_window"`
	Workers          int           `mapstructure:"workers"`
	BatchSize        int           `mapstructure:"batch_size"`
	StaleRunTimeout  time.Duration `mapstructure:"stale_run_timeout"`
	NightlyHour      int           `mapstructure:"nightly_hour"`
	NightlyMinute    int           `mapstructure:"nightly_minute"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scamguard")
	}

	setDefaults(v)

	v.SetEnvPrefix("SCAMGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	v.BindEnv("database.host", "SCAMGUARD_DATABASE_HOST")
	v.BindEnv("database.port", "SCAMGUARD_DATABASE_PORT")
	v.BindEnv("database.user", "SCAMGUARD_DATABASE_USER")
	v.BindEnv("database.password", "SCAMGUARD_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "SCAMGUARD_DATABASE_DBNAME")
	v.BindEnv("database.sslmode", "SCAMGUARD_DATABASE_SSLMODE")
	v.BindEnv("redis.host", "SCAMGUARD_REDIS_HOST")
	v.BindEnv("redis.port", "SCAMGUARD_REDIS_PORT")
	v.BindEnv("redis.password", "SCAMGUARD_REDIS_PASSWORD")
	v.BindEnv("message_store.base_url", "SCAMGUARD_MESSAGE_STORE_BASE_URL")
	v.BindEnv("message_store.api_key", "SCAMGUARD_MESSAGE_STORE_API_KEY")
	v.BindEnv("ai.api_key", "SCAMGUARD_AI_API_KEY")
	v.BindEnv("app.environment", "SCAMGUARD_APP_ENVIRONMENT")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate rejects configurations the engine cannot safely run with.
func (c *Config) Validate() error {
	f := c.Detection.Fusion
	if !(f.MediumThreshold <= f.HighThreshold && f.HighThreshold <= f.CriticalThreshold) {
		return fmt.Errorf("invalid fusion thresholds: medium=%.1f high=%.1f critical=%.1f",
			f.MediumThreshold, f.HighThreshold, f.CriticalThreshold)
	}
	if f.FlagFloor < 0 || f.FlagFloor > 100 {
		return fmt.Errorf("flag floor out of range: %.1f", f.FlagFloor)
	}
	if c.AI.Enabled && c.AI.EscalationLow > c.AI.EscalationHigh {
		return fmt.Errorf("invalid AI escalation band: [%.1f, %.1f]",
			c.AI.EscalationLow, c.AI.EscalationHigh)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan workers must be >= 1, got %d", c.Scan.Workers)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "scamguard")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.key_prefix", "scamguard:")

	v.SetDefault("message_store.page_size", 100)
	v.SetDefault("message_store.timeout", 30*time.Second)
	v.SetDefault("message_store.max_retries", 3)
	v.SetDefault("message_store.retry_backoff", time.Second)

	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.model", "claude-haiku-20250306")
	v.SetDefault("ai.base_url", "https://api.anthropic.com")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.requests_per_minute", 30)
	v.SetDefault("ai.max_reviews_per_run", 100)
	v.SetDefault("ai.max_reviews_daily", 20)
	v.SetDefault("ai.escalation_low", 40.0)
	v.SetDefault("ai.escalation_high", 90.0)

	v.SetDefault("detection.rules_file", "rules/scam_patterns.yaml")
	v.SetDefault("detection.learned_rules_file", "rules/learned_patterns.yaml")
	v.SetDefault("detection.behavioral.short_message_length", 20)
	v.SetDefault("detection.behavioral.caps_ratio_threshold", 0.5)
	v.SetDefault("detection.behavioral.caps_min_length", 10)
	v.SetDefault("detection.behavioral.exclamation_threshold", 3)
	v.SetDefault("detection.behavioral.keyword_threshold", 2)
	v.SetDefault("detection.behavioral.max_national_digits", 11)
	v.SetDefault("detection.behavioral.expected_country_code", "1")
	v.SetDefault("detection.fusion.critical_threshold", 90.0)
	v.SetDefault("detection.fusion.high_threshold", 70.0)
	v.SetDefault("detection.fusion.medium_threshold", 40.0)
	v.SetDefault("detection.fusion.flag_floor", 20.0)

	v.SetDefault("scan.periodic_interval", 15*time.Minute)
	v.SetDefault("scan.lookback_window", 15*time.Minute)
	v.SetDefault("scan.workers", 8)
	v.SetDefault("scan.batch_size", 100)
	v.SetDefault("scan.stale_run_timeout", time.Hour)
	v.SetDefault("scan.nightly_hour", 2)
	v.SetDefault("scan.nightly_minute", 0)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 120)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.time_format", time.RFC3339)
}
