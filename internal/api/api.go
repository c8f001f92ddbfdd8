// Package api provides HTTP handlers and the main API server logic for the
// sleep journal feedback service.
//
// It exposes POST /v1/feedback, GET /v1/stats and GET /healthz, and wires the
// feedback pipeline, the receipt store and the rate limiter together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nisiwa02/sleep-journal-app/internal/feedback"
	"github.com/nisiwa02/sleep-journal-app/internal/genai"
	"github.com/nisiwa02/sleep-journal-app/internal/models"
	"github.com/nisiwa02/sleep-journal-app/internal/store"
)

// Server defaults.
const (
	DefaultAddr            = "0.0.0.0:8080"
	DefaultMaxBodyBytes    = 64 << 10
	DefaultShutdownTimeout = 10 * time.Second
	DefaultAllowedOrigin   = "http://localhost:5173"
)

// Generator produces feedback for validated requests.
type Generator interface {
	Generate(ctx context.Context, req models.FeedbackRequest) (*models.FeedbackResult, error)
	Provider() string
	Model() string
	PromptVersion() string
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr            string
	AllowedOrigins  []string
	RateLimitMax    int
	RateLimitWindow time.Duration
	RedisURL        string
	TrustProxy      bool
	ModelTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	ReceiptRetention time.Duration
	PruneSchedule    string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithAllowedOrigins sets the CORS allowlist.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Opts) {
		o.AllowedOrigins = origins
	}
}

// WithRateLimit allows max requests per client in each window.
func WithRateLimit(max int, window time.Duration) Option {
	return func(o *Opts) {
		o.RateLimitMax = max
		o.RateLimitWindow = window
	}
}

// WithRedisURL shares rate limit counters through Redis.
func WithRedisURL(url string) Option {
	return func(o *Opts) {
		o.RedisURL = url
	}
}

// WithTrustProxy keys rate limits on X-Forwarded-For instead of the peer address.
func WithTrustProxy(trust bool) Option {
	return func(o *Opts) {
		o.TrustProxy = trust
	}
}

// WithModelTimeout bounds each model call.
func WithModelTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ModelTimeout = d
	}
}

// WithShutdownTimeout bounds how long in-flight requests may drain on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ShutdownTimeout = d
	}
}

// WithReceiptRetention prunes receipts older than retention on schedule.
// A non-positive retention keeps receipts forever.
func WithReceiptRetention(retention time.Duration, schedule string) Option {
	return func(o *Opts) {
		o.ReceiptRetention = retention
		if schedule != "" {
			o.PruneSchedule = schedule
		}
	}
}

// WithMaxBodyBytes caps the request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(o *Opts) {
		o.MaxBodyBytes = n
	}
}

func defaultOpts() Opts {
	return Opts{
		Addr:            DefaultAddr,
		AllowedOrigins:  []string{DefaultAllowedOrigin},
		RateLimitMax:    DefaultRateLimitMax,
		RateLimitWindow: DefaultRateLimitWindow,
		ModelTimeout:    feedback.DefaultModelTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxBodyBytes:    DefaultMaxBodyBytes,

		ReceiptRetention: DefaultReceiptRetention,
		PruneSchedule:    DefaultPruneSchedule,
	}
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	addr            string
	generator       Generator
	st              store.Store
	limiter         RateLimiter
	allowedOrigins  []string
	trustProxy      bool
	maxBodyBytes    int64
	shutdownTimeout time.Duration
	handler         http.Handler
}

// NewServer creates a Server. A nil limiter disables rate limiting.
func NewServer(generator Generator, st store.Store, limiter RateLimiter, opts ...Option) *Server {
	cfg := defaultOpts()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{
		addr:            cfg.Addr,
		generator:       generator,
		st:              st,
		limiter:         limiter,
		allowedOrigins:  cfg.AllowedOrigins,
		trustProxy:      cfg.TrustProxy,
		maxBodyBytes:    cfg.MaxBodyBytes,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowedHandler)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	// Root-level routes keep method mismatches visible to MethodNotAllowedHandler.
	r.Handle("/v1/feedback", s.rateLimitMiddleware(http.HandlerFunc(s.feedbackHandler))).Methods(http.MethodPost)
	r.Handle("/v1/stats", s.rateLimitMiddleware(http.HandlerFunc(s.statsHandler))).Methods(http.MethodGet)

	return gzhttp.GzipHandler(s.corsMiddleware(r))
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then drains in-flight
// requests for up to the shutdown timeout.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server.Serve: listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server.Serve: shutting down", "timeout", s.shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Run builds the store, model client, feedback service, rate limiter and
// retention job from options and serves until ctx is cancelled.
func Run(ctx context.Context, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := defaultOpts()
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	stopRetention, err := startRetention(st, cfg)
	if err != nil {
		return fmt.Errorf("failed to schedule receipt retention: %w", err)
	}
	defer stopRetention()

	schema, err := feedback.ResponseSchema()
	if err != nil {
		return fmt.Errorf("failed to build response schema: %w", err)
	}
	genaiOpts = append([]genai.Option{genai.WithResponseSchema(feedback.ResponseSchemaName, schema)}, genaiOpts...)
	client, err := genai.NewClient(ctx, genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	service := feedback.NewService(client, feedback.WithModelTimeout(cfg.ModelTimeout))
	slog.Info("Run: model client ready", "provider", client.Provider(), "model", client.Model(), "prompt_version", service.PromptVersion())

	limiter, closeLimiter := newRateLimiter(ctx, cfg)
	defer closeLimiter()

	return NewServer(service, st, limiter, apiOpts...).Serve(ctx)
}

// newRateLimiter returns a Redis limiter when configured and reachable, and an
// in-process limiter otherwise.
func newRateLimiter(ctx context.Context, cfg Opts) (RateLimiter, func()) {
	noop := func() {}
	if cfg.RateLimitMax <= 0 {
		slog.Info("newRateLimiter: rate limiting disabled")
		return nil, noop
	}
	if cfg.RedisURL == "" {
		return NewMemoryRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow), noop
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Warn("newRateLimiter: invalid REDIS_URL, using in-process limiter", "error", err)
		return NewMemoryRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow), noop
	}
	rdb := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("newRateLimiter: Redis unreachable, using in-process limiter", "error", err)
		rdb.Close()
		return NewMemoryRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow), noop
	}
	slog.Info("newRateLimiter: using Redis rate limiter", "addr", redisOpts.Addr)
	return NewRedisRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow), func() { rdb.Close() }
}
