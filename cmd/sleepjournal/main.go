package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nisiwa02/sleep-journal-app/internal/api"
	"github.com/nisiwa02/sleep-journal-app/internal/genai"
	"github.com/nisiwa02/sleep-journal-app/internal/store"
	"github.com/nisiwa02/sleep-journal-app/internal/util"
)

func main() {
	// Load configuration before the logger so .env can set LOG_LEVEL
	config, err := loadEnvironmentConfig(configPathFromArgs(os.Args[1:]))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Parse command line flags
	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	// Initialize structured logger
	initializeLogger(os.Stdout, config.LogLevel, config.LogFormat)

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping sleep journal feedback service")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "provider", flags.provider, "dsn_set", flags.dbDSN != "", "api_addr", flags.addr())
	if err := api.Run(ctx, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("Service failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Service exited successfully")
}

// Flags holds command line flag values
type Flags struct {
	configPath     string
	host           string
	port           int
	allowedOrigins string
	provider       string
	gcpProject     string
	gcpRegion      string
	geminiModel    string
	geminiKey      string
	openaiKey      string
	openaiModel    string
	structured     bool
	dbDSN          string
	redisURL       string
	trustProxy     bool

	rateLimitMax     int
	rateLimitWindow  string
	modelTimeout     string
	receiptRetention string
	pruneSchedule    string
}

func (f Flags) addr() string {
	return net.JoinHostPort(f.host, strconv.Itoa(f.port))
}

// initializeLogger installs the default slog logger.
func initializeLogger(w io.Writer, level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// parseCommandLineFlags parses command line arguments with configuration defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("sleepjournal", flag.ContinueOnError)
	var flags Flags
	fs.StringVar(&flags.configPath, "config", "", "path to a TOML config file (overrides $"+ConfigEnvVar+")")
	fs.StringVar(&flags.host, "host", config.Host, "listen host (overrides $HOST)")
	fs.IntVar(&flags.port, "port", config.Port, "listen port (overrides $PORT)")
	fs.StringVar(&flags.allowedOrigins, "allowed-origins", strings.Join(config.AllowedOrigins, ","), "comma-separated CORS origins (overrides $ALLOWED_ORIGINS)")
	fs.StringVar(&flags.provider, "provider", config.Provider, "model provider: vertex, gemini or openai (overrides $MODEL_PROVIDER)")
	fs.StringVar(&flags.gcpProject, "gcp-project", config.GCPProject, "Google Cloud project for Vertex AI (overrides $GCP_PROJECT_ID)")
	fs.StringVar(&flags.gcpRegion, "gcp-region", config.GCPRegion, "Google Cloud region for Vertex AI (overrides $GCP_REGION)")
	fs.StringVar(&flags.geminiModel, "gemini-model", config.GeminiModel, "Gemini model name (overrides $GEMINI_MODEL)")
	fs.StringVar(&flags.geminiKey, "gemini-api-key", config.GeminiAPIKey, "Gemini API key (overrides $GEMINI_API_KEY)")
	fs.StringVar(&flags.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.openaiModel, "openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)")
	fs.BoolVar(&flags.structured, "structured-output", config.StructuredOutput, "request schema-guided JSON output (overrides $STRUCTURED_OUTPUT)")
	fs.StringVar(&flags.modelTimeout, "model-timeout", config.ModelTimeout.String(), "model call timeout (overrides $MODEL_TIMEOUT)")
	fs.IntVar(&flags.rateLimitMax, "rate-limit-max", config.RateLimitMax, "requests per client per window, 0 disables (overrides $RATE_LIMIT_MAX)")
	fs.StringVar(&flags.rateLimitWindow, "rate-limit-window", config.RateLimitWindow.String(), "rate limit window (overrides $RATE_LIMIT_WINDOW)")
	fs.StringVar(&flags.redisURL, "redis-url", config.RedisURL, "Redis URL for shared rate limits (overrides $REDIS_URL)")
	fs.BoolVar(&flags.trustProxy, "trust-proxy", config.TrustProxy, "key rate limits on X-Forwarded-For (overrides $TRUST_PROXY)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseDSN, "receipt store DSN, SQLite path or Postgres URL (overrides $DATABASE_DSN)")
	fs.StringVar(&flags.receiptRetention, "receipt-retention", config.ReceiptRetention.String(), "delete receipts older than this, 0 keeps them (overrides $RECEIPT_RETENTION)")
	fs.StringVar(&flags.pruneSchedule, "prune-schedule", config.PruneSchedule, "cron schedule for receipt pruning (overrides $PRUNE_SCHEDULE)")

	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	slog.Debug("flags parsed",
		"host", flags.host,
		"port", flags.port,
		"provider", flags.provider,
		"gcpProjectSet", flags.gcpProject != "",
		"geminiKeySet", flags.geminiKey != "",
		"openaiKeySet", flags.openaiKey != "",
		"structured", flags.structured,
		"dbDSN_set", flags.dbDSN != "",
		"redisURL_set", flags.redisURL != "")

	return flags, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.dbDSN != "" {
		if store.DetectDSNType(flags.dbDSN) == store.DSNTypePostgres {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs model client options for the selected provider
func buildGenAIOptions(flags Flags) []genai.Option {
	provider := strings.ToLower(strings.TrimSpace(flags.provider))
	genaiOpts := []genai.Option{
		genai.WithProvider(provider),
		genai.WithStructuredOutput(flags.structured),
	}
	switch provider {
	case genai.ProviderOpenAI:
		genaiOpts = append(genaiOpts, genai.WithModel(flags.openaiModel))
		if flags.openaiKey != "" {
			genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.openaiKey))
		}
	case genai.ProviderGemini:
		genaiOpts = append(genaiOpts, genai.WithModel(flags.geminiModel))
		if flags.geminiKey != "" {
			genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.geminiKey))
		}
	default:
		genaiOpts = append(genaiOpts,
			genai.WithModel(flags.geminiModel),
			genai.WithProject(flags.gcpProject),
			genai.WithLocation(flags.gcpRegion))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithAddr(flags.addr()),
		api.WithTrustProxy(flags.trustProxy),
	}
	if origins := util.SplitCSV(flags.allowedOrigins); len(origins) > 0 {
		apiOpts = append(apiOpts, api.WithAllowedOrigins(origins))
	}
	if flags.redisURL != "" {
		apiOpts = append(apiOpts, api.WithRedisURL(flags.redisURL))
	}

	window := api.DefaultRateLimitWindow
	if d, err := util.ParseDuration(flags.rateLimitWindow); err == nil && d > 0 {
		window = d
	} else {
		slog.Warn("buildAPIOptions: invalid rate limit window, using default", "value", flags.rateLimitWindow)
	}
	apiOpts = append(apiOpts, api.WithRateLimit(flags.rateLimitMax, window))

	if d, err := util.ParseDuration(flags.modelTimeout); err == nil && d > 0 {
		apiOpts = append(apiOpts, api.WithModelTimeout(d))
	} else {
		slog.Warn("buildAPIOptions: invalid model timeout, using default", "value", flags.modelTimeout)
	}

	if d, err := util.ParseDuration(flags.receiptRetention); err == nil {
		apiOpts = append(apiOpts, api.WithReceiptRetention(d, flags.pruneSchedule))
	} else {
		slog.Warn("buildAPIOptions: invalid receipt retention, using default", "value", flags.receiptRetention)
	}
	return apiOpts
}
