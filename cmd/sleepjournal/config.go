package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/nisiwa02/sleep-journal-app/internal/api"
	"github.com/nisiwa02/sleep-journal-app/internal/feedback"
	"github.com/nisiwa02/sleep-journal-app/internal/genai"
	"github.com/nisiwa02/sleep-journal-app/internal/util"
)

// Default configuration constants
const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 8080
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	// ConfigEnvVar names the optional TOML config file.
	ConfigEnvVar = "SLEEPJOURNAL_CONFIG"
)

// Config holds the resolved service configuration.
type Config struct {
	Host             string
	Port             int
	AllowedOrigins   []string
	LogLevel         string
	LogFormat        string
	Provider         string
	GCPProject       string
	GCPRegion        string
	GeminiModel      string
	GeminiAPIKey     string
	OpenAIKey        string
	OpenAIModel      string
	ModelTimeout     time.Duration
	StructuredOutput bool
	RateLimitMax     int
	RateLimitWindow  time.Duration
	RedisURL         string
	TrustProxy       bool
	DatabaseDSN      string
	ReceiptRetention time.Duration
	PruneSchedule    string
}

// FileConfig is the TOML config file layout. Unset keys keep their defaults.
type FileConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`

	Model     ModelFileConfig     `toml:"model"`
	RateLimit RateLimitFileConfig `toml:"rate_limit"`
	Database  DatabaseFileConfig  `toml:"database"`
}

type ModelFileConfig struct {
	Provider         string `toml:"provider"`
	GCPProject       string `toml:"gcp_project_id"`
	GCPRegion        string `toml:"gcp_region"`
	GeminiModel      string `toml:"gemini_model"`
	OpenAIModel      string `toml:"openai_model"`
	Timeout          string `toml:"timeout"`
	StructuredOutput *bool  `toml:"structured_output"`
}

type RateLimitFileConfig struct {
	Max        int    `toml:"max"`
	Window     string `toml:"window"`
	RedisURL   string `toml:"redis_url"`
	TrustProxy *bool  `toml:"trust_proxy"`
}

type DatabaseFileConfig struct {
	DSN           string `toml:"dsn"`
	Retention     string `toml:"retention"`
	PruneSchedule string `toml:"prune_schedule"`
}

// defaultConfig returns the configuration used when nothing is set.
func defaultConfig() Config {
	return Config{
		Host:             DefaultHost,
		Port:             DefaultPort,
		AllowedOrigins:   []string{api.DefaultAllowedOrigin},
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		Provider:         genai.ProviderVertex,
		GCPRegion:        genai.DefaultLocation,
		GeminiModel:      genai.DefaultGeminiModel,
		OpenAIModel:      genai.DefaultOpenAIModel,
		ModelTimeout:     feedback.DefaultModelTimeout,
		StructuredOutput: true,
		RateLimitMax:     api.DefaultRateLimitMax,
		RateLimitWindow:  api.DefaultRateLimitWindow,
		ReceiptRetention: api.DefaultReceiptRetention,
		PruneSchedule:    api.DefaultPruneSchedule,
	}
}

// loadConfigFile decodes a TOML config file.
func loadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// applyFileConfig layers set file values over cfg.
func applyFileConfig(cfg *Config, fc FileConfig) {
	setString(&cfg.Host, fc.Host)
	if fc.Port > 0 {
		cfg.Port = fc.Port
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)

	setString(&cfg.Provider, fc.Model.Provider)
	setString(&cfg.GCPProject, fc.Model.GCPProject)
	setString(&cfg.GCPRegion, fc.Model.GCPRegion)
	setString(&cfg.GeminiModel, fc.Model.GeminiModel)
	setString(&cfg.OpenAIModel, fc.Model.OpenAIModel)
	setDuration(&cfg.ModelTimeout, "model.timeout", fc.Model.Timeout)
	if fc.Model.StructuredOutput != nil {
		cfg.StructuredOutput = *fc.Model.StructuredOutput
	}

	if fc.RateLimit.Max > 0 {
		cfg.RateLimitMax = fc.RateLimit.Max
	}
	setDuration(&cfg.RateLimitWindow, "rate_limit.window", fc.RateLimit.Window)
	setString(&cfg.RedisURL, fc.RateLimit.RedisURL)
	if fc.RateLimit.TrustProxy != nil {
		cfg.TrustProxy = *fc.RateLimit.TrustProxy
	}

	setString(&cfg.DatabaseDSN, fc.Database.DSN)
	setDuration(&cfg.ReceiptRetention, "database.retention", fc.Database.Retention)
	setString(&cfg.PruneSchedule, fc.Database.PruneSchedule)
}

func setString(dst *string, val string) {
	if val = strings.TrimSpace(val); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key, val string) {
	if val = strings.TrimSpace(val); val == "" {
		return
	}
	d, err := util.ParseDuration(val)
	if err != nil || d <= 0 {
		slog.Warn("applyFileConfig: invalid duration, keeping default", "key", key, "value", val)
		return
	}
	*dst = d
}

// loadEnvironmentConfig loads configuration from the .env file, the optional
// TOML file and environment variables, in increasing precedence.
func loadEnvironmentConfig(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := defaultConfig()

	if configPath == "" {
		configPath = os.Getenv(ConfigEnvVar)
	}
	if configPath != "" {
		fc, err := loadConfigFile(configPath)
		if err != nil {
			return cfg, err
		}
		applyFileConfig(&cfg, fc)
		slog.Debug("config file loaded", "path", configPath)
	}

	setString(&cfg.Host, os.Getenv("HOST"))
	cfg.Port = util.ParseIntEnv("PORT", cfg.Port)
	if origins := util.SplitCSV(os.Getenv("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	setString(&cfg.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&cfg.LogFormat, os.Getenv("LOG_FORMAT"))

	setString(&cfg.Provider, os.Getenv("MODEL_PROVIDER"))
	setString(&cfg.GCPProject, os.Getenv("GCP_PROJECT_ID"))
	setString(&cfg.GCPRegion, os.Getenv("GCP_REGION"))
	setString(&cfg.GeminiModel, os.Getenv("GEMINI_MODEL"))
	setString(&cfg.GeminiAPIKey, os.Getenv("GEMINI_API_KEY"))
	setString(&cfg.OpenAIKey, os.Getenv("OPENAI_API_KEY"))
	setString(&cfg.OpenAIModel, os.Getenv("OPENAI_MODEL"))
	cfg.ModelTimeout = util.ParseDurationEnv("MODEL_TIMEOUT", cfg.ModelTimeout)
	cfg.StructuredOutput = util.ParseBoolEnv("STRUCTURED_OUTPUT", cfg.StructuredOutput)

	cfg.RateLimitMax = util.ParseIntEnv("RATE_LIMIT_MAX", cfg.RateLimitMax)
	cfg.RateLimitWindow = util.ParseDurationEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	setString(&cfg.RedisURL, os.Getenv("REDIS_URL"))
	cfg.TrustProxy = util.ParseBoolEnv("TRUST_PROXY", cfg.TrustProxy)
	setString(&cfg.DatabaseDSN, os.Getenv("DATABASE_DSN"))
	cfg.ReceiptRetention = util.ParseDurationEnv("RECEIPT_RETENTION", cfg.ReceiptRetention)
	setString(&cfg.PruneSchedule, os.Getenv("PRUNE_SCHEDULE"))

	slog.Debug("environment variables loaded",
		"HOST", cfg.Host,
		"PORT", cfg.Port,
		"ALLOWED_ORIGINS", cfg.AllowedOrigins,
		"MODEL_PROVIDER", cfg.Provider,
		"GCP_PROJECT_ID_SET", cfg.GCPProject != "",
		"GCP_REGION", cfg.GCPRegion,
		"GEMINI_API_KEY_SET", cfg.GeminiAPIKey != "",
		"OPENAI_API_KEY_SET", cfg.OpenAIKey != "",
		"MODEL_TIMEOUT", cfg.ModelTimeout,
		"STRUCTURED_OUTPUT", cfg.StructuredOutput,
		"RATE_LIMIT_MAX", cfg.RateLimitMax,
		"RATE_LIMIT_WINDOW", cfg.RateLimitWindow,
		"REDIS_URL_SET", cfg.RedisURL != "",
		"DATABASE_DSN_SET", cfg.DatabaseDSN != "",
		"RECEIPT_RETENTION", cfg.ReceiptRetention,
		"PRUNE_SCHEDULE", cfg.PruneSchedule)

	return cfg, nil
}

// configPathFromArgs finds -config before flags are parsed so the file can
// supply flag defaults.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
