package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/aggregate"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/pricefeed"
	"bilancio/internal/services"
)

// Ledger is the application surface the handlers depend on.
type Ledger interface {
	Record(ctx context.Context, d services.Draft) (core.Transaction, error)
	Import(ctx context.Context, payload []byte) (int, error)
	ExportJSON(ctx context.Context) ([]byte, error)
	ExportCSV(ctx context.Context) ([]byte, error)
	Transactions(ctx context.Context, month string, method core.SettlementMethod) []core.Transaction
	Summary(ctx context.Context, month string) aggregate.Summary
	Categories(ctx context.Context, month string) []aggregate.CategorySummary
	CategoryPie(ctx context.Context, month string) []aggregate.PieSlice
	CategoryStacked(ctx context.Context, month string) []aggregate.CategoryPoint
	MonthlySeries(ctx context.Context) []aggregate.MonthPoint
	Descriptions(ctx context.Context) []string
	AlternateBalance(ctx context.Context) (balance, initial int64)
	SuggestedCategories(ctx context.Context) []string
	LatestRate(ctx context.Context) (pricefeed.Quote, error)
	RateHistory(ctx context.Context, limit int) ([]pricefeed.Quote, error)
	CurrentMonth() string
	Len() int
}

// RateRefresher forces an immediate quote fetch.
type RateRefresher interface {
	Refresh(ctx context.Context) (pricefeed.Quote, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options configures optional server behaviour.
type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
	Refresher          RateRefresher
	Checks             map[string]ReadinessCheck
	// Caches are reported by /metrics and cleaned periodically.
	Caches []cache.Cleaner
}

type Server struct {
	http.Server
	ledger    Ledger
	refresher RateRefresher
	checks    map[string]ReadinessCheck
	logger    *log.Logger

	rateLimiter     *ratelimit.Limiter
	securityDetect  *security.Detector
	traceMiddleware *trace.Middleware
	cacheManager    *cache.Manager
	caches          []cache.Cleaner

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime time.Time
}

const (
	maxBodyBytes         = 1 << 20
	maxImportBytes       = 10 << 20
	cacheCleanupInterval = 10 * time.Minute
)

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	limit := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limit.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		ledger:         ledger,
		refresher:      opts.Refresher,
		checks:         opts.Checks,
		logger:         logger.WithComponent(log.ComponentHTTP),
		rateLimiter:    ratelimit.NewLimiter(limit),
		securityDetect: security.NewDetector(logger),
		cacheManager:   cache.NewManager(logger),
		caches:         opts.Caches,
		appMetrics:     &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetect.ExtractClientIP)

	for _, c := range opts.Caches {
		s.cacheManager.Register(c)
	}
	s.cacheManager.StartCleanup(cacheCleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/categories/suggested", s.handleSuggestedCategories)
	mux.HandleFunc("GET /api/series/monthly", s.handleMonthlySeries)
	mux.HandleFunc("GET /api/series/categories", s.handleCategorySeries)
	mux.HandleFunc("GET /api/series/stacked", s.handleStackedSeries)
	mux.HandleFunc("GET /api/descriptions", s.handleDescriptions)
	mux.HandleFunc("GET /api/balance/alternate", s.handleAlternateBalance)
	mux.HandleFunc("GET /api/rate", s.handleRate)
	mux.HandleFunc("POST /api/rate/refresh", s.handleRateRefresh)
	mux.HandleFunc("GET /api/rate/history", s.handleRateHistory)
	mux.HandleFunc("GET /api/export/json", s.handleExportJSON)
	mux.HandleFunc("GET /api/export/csv", s.handleExportCSV)
	mux.HandleFunc("POST /api/import", s.handleImport)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.rateLimiter.Middleware(s.securityDetect.ExtractClientIP, s.handleRateLimited)

	var handler http.Handler = mux
	handler = log.ComponentMiddleware(log.ComponentHTTP)(handler)
	handler = limited(handler)
	handler = headers.Middleware(handler)
	handler = s.securityDetect.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
