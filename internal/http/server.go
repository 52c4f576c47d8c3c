package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"centsible/internal/cache"
	"centsible/internal/core"
	applog "centsible/internal/log"
	"centsible/internal/middleware/ratelimit"
	"centsible/internal/middleware/security"
	"centsible/internal/middleware/trace"
	"centsible/internal/services"
)

// Ledger is the part of services.TransactionRecorder the API serves.
type Ledger interface {
	RegisterUser(ctx context.Context, username string) (core.User, error)
	User(ctx context.Context, userID int64) (core.User, error)
	RecordTransaction(ctx context.Context, req services.RecordRequest) (core.Transaction, core.User, error)
	ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error)
	Summary(ctx context.Context, userID int64) (core.LedgerSummary, error)
}

// Goals is the part of services.GoalManager the API serves.
type Goals interface {
	CreateGoal(ctx context.Context, userID int64, name string, target core.Money) (core.SavingsGoal, error)
	ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error)
	ContributeForUser(ctx context.Context, userID, goalID int64, amount core.Money) (core.SavingsGoal, error)
}

// Options tunes the server. Zero values select the defaults.
type Options struct {
	RateLimitPerMinute int
	SummaryCacheSize   int
	SummaryCacheTTL    time.Duration
	CacheCleanup       time.Duration
	// Ready is consulted by /readyz; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *applog.Logger
}

type Server struct {
	http.Server
	ledger Ledger
	goals  Goals
	ready  func(ctx context.Context) error
	logger *applog.Logger

	summaries   *cache.SummaryCache
	caches      *cache.Manager
	rateLimiter *ratelimit.Limiter
	clientIPs   *security.ClientIPResolver
	tracer      *trace.Middleware
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger Ledger, goals Goals, opts Options) *Server {
	if opts.SummaryCacheSize <= 0 {
		opts.SummaryCacheSize = 1000
	}
	if opts.SummaryCacheTTL <= 0 {
		opts.SummaryCacheTTL = 30 * time.Second
	}
	if opts.CacheCleanup <= 0 {
		opts.CacheCleanup = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = applog.Default(applog.ComponentHTTP)
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		ledger:      ledger,
		goals:       goals,
		ready:       opts.Ready,
		logger:      logger,
		summaries:   cache.NewSummaryCache(opts.SummaryCacheSize, opts.SummaryCacheTTL),
		caches:      cache.NewManager(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		clientIPs:   security.NewClientIPResolver(),
		started:     time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.clientIPs.ClientIP, logger)
	s.caches.Register(s.summaries)
	s.caches.StartCleanup(opts.CacheCleanup)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(
		s.tracer.Middleware,
		applog.Middleware(s.logger),
		applog.RequestIDMiddleware(trace.RequestIDFromRequest),
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.rateLimiter.Middleware(s.clientIPs.ClientIP, ratelimit.MutatingOnly, s.onRateLimit),
	)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	r.HandleFunc("/users", s.handleRegisterUser).Methods(http.MethodPost)
	r.HandleFunc("/me", s.withUser(s.handleMe)).Methods(http.MethodGet)

	r.HandleFunc("/transactions", s.withUser(s.handleListTransactions)).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.withUser(s.handleRecordTransaction)).Methods(http.MethodPost)
	r.HandleFunc("/summary", s.withUser(s.handleSummary)).Methods(http.MethodGet)

	r.HandleFunc("/goals", s.withUser(s.handleListGoals)).Methods(http.MethodGet)
	r.HandleFunc("/goals", s.withUser(s.handleCreateGoal)).Methods(http.MethodPost)
	r.HandleFunc("/goals/{id}", s.withUser(s.handleContribute)).Methods(http.MethodPatch)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError(CodeNotFound, "not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})
	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.clientIPs.ClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path,
		"retry_after", retryAfter)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
