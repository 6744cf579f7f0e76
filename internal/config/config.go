package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"kiddoquest/internal/analytics"
	"kiddoquest/internal/rules"
)

// Config holds application configuration
type Config struct {
	ServerPort     string
	DatabaseType   string
	DatabasePath   string
	DatabaseURL    string
	MigrationsPath string
	LogMode        string
	JWTSecret      string
	JWTIssuer      string
	RedisURL       string
	AWSRegion      string
	SESFromEmail   string
	SESFromName    string
	AppBaseURL     string
	EngineConfig   string

	Engine EngineConfig
}

// EngineConfig holds the tunables of the rule and analytics engine. It is
// read from the YAML file named by ENGINE_CONFIG; missing keys keep defaults.
type EngineConfig struct {
	Severity          rules.SeverityTable  `yaml:"severity"`
	AppealWindow      time.Duration        `yaml:"appeal_window"`
	StaleStreakAfter  time.Duration        `yaml:"stale_streak_after"`
	DefaultTimezone   string               `yaml:"default_timezone"`
	TxMaxRetries      int                  `yaml:"tx_max_retries"`
	ReportConcurrency int                  `yaml:"report_concurrency"`
	JobTimeout        time.Duration        `yaml:"job_timeout"`
	Schedules         Schedules            `yaml:"schedules"`
	Insights          analytics.Thresholds `yaml:"insights"`
	RateLimit         RateLimit            `yaml:"rate_limit"`
}

// Schedules are cron expressions for the scheduled jobs
type Schedules struct {
	PenaltySweep string `yaml:"penalty_sweep"`
	StreakSweep  string `yaml:"streak_sweep"`
	DailyReport  string `yaml:"daily_report"`
	WeeklyReport string `yaml:"weekly_report"`
}

// RateLimit bounds callable requests per identity
type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// DefaultEngineConfig returns the engine defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Severity:          rules.DefaultSeverityTable(),
		AppealWindow:      24 * time.Hour,
		StaleStreakAfter:  24 * time.Hour,
		DefaultTimezone:   "UTC",
		TxMaxRetries:      5,
		ReportConcurrency: 4,
		JobTimeout:        9 * time.Minute,
		Schedules: Schedules{
			PenaltySweep: "0 0 * * *",
			StreakSweep:  "30 0 * * *",
			DailyReport:  "55 23 * * *",
			WeeklyReport: "0 1 * * 1",
		},
		Insights:  analytics.DefaultThresholds(),
		RateLimit: RateLimit{PerSecond: 5, Burst: 10},
	}
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:     getEnv("PORT", "8080"),
		DatabaseType:   getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:   getEnv("DB_PATH", "./kiddoquest.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		LogMode:        getEnv("LOG_MODE", "dev"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "kiddoquest"),
		RedisURL:       getEnv("REDIS_URL", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:   getEnv("SES_FROM_EMAIL", ""),
		SESFromName:    getEnv("SES_FROM_NAME", "Kiddo Quest"),
		AppBaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		EngineConfig:   getEnv("ENGINE_CONFIG", ""),
		Engine:         DefaultEngineConfig(),
	}

	if cfg.EngineConfig != "" {
		engine, err := LoadEngineConfig(cfg.EngineConfig)
		if err != nil {
			return nil, err
		}
		cfg.Engine = engine
	}

	if v := os.Getenv("TX_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TX_MAX_RETRIES %q: %w", v, err)
		}
		cfg.Engine.TxMaxRetries = n
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEngineConfig reads an engine YAML file on top of the defaults
func LoadEngineConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("failed to read engine config: %w", err)
	}
	return ParseEngineConfig(data)
}

// ParseEngineConfig decodes engine YAML on top of the defaults
func ParseEngineConfig(data []byte) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	// A severity block replaces the default table instead of merging into it.
	cfg.Severity = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("failed to parse engine config: %w", err)
	}
	if len(cfg.Severity) == 0 {
		cfg.Severity = rules.DefaultSeverityTable()
	}
	return cfg, nil
}

// Validate checks the engine settings
func (e EngineConfig) Validate() error {
	if _, err := rules.NewCalculator(e.Severity); err != nil {
		return fmt.Errorf("invalid severity table: %w", err)
	}
	if e.AppealWindow <= 0 {
		return fmt.Errorf("appeal_window must be positive")
	}
	if e.StaleStreakAfter <= 0 {
		return fmt.Errorf("stale_streak_after must be positive")
	}
	if _, err := time.LoadLocation(e.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid default_timezone %q: %w", e.DefaultTimezone, err)
	}
	if e.TxMaxRetries < 1 {
		return fmt.Errorf("tx_max_retries must be at least 1")
	}
	if e.ReportConcurrency < 1 {
		return fmt.Errorf("report_concurrency must be at least 1")
	}
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
