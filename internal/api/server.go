package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ict-engine/internal/analytics"
	"ict-engine/internal/auth"
	"ict-engine/internal/events"
	"ict-engine/internal/learning"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
	"ict-engine/internal/memory"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's bucket survives without requests
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-client token bucket rate limiting. Buckets idle
// for longer than limiterIdleTTL are swept on a later Allow call.
type RateLimiter struct {
	limiters  map[string]*clientLimiter
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters:  make(map[string]*clientLimiter),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	now := r.now()
	if now.Sub(r.lastSweep) >= limiterIdleTTL {
		r.sweep(now)
	}
	cl, ok := r.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = cl
	}
	cl.lastSeen = now
	r.mu.Unlock()
	return cl.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds mu.
func (r *RateLimiter) sweep(now time.Time) {
	for key, cl := range r.limiters {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(r.limiters, key)
		}
	}
	r.lastSweep = now
}

// Analytics is the integrator surface the API drives
type Analytics interface {
	PerformCompleteAnalysis(ctx context.Context, candles []market.Candle, symbol, timeframe string) (*analytics.AnalyticsResult, error)
	UpdatePatternOutcome(ctx context.Context, recordID string, outcome learning.Outcome, profitR float64, feedback string) error
	GetSystemStatus() analytics.SystemStatus
	PauseAnalyticsSystem() error
	ResumeAnalyticsSystem() error
	ShutdownAnalyticsSystem() error
}

// CandleSource fetches candles for the GET analyze route
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// LearningStats reports per-pattern outcome statistics
type LearningStats interface {
	PatternStats(ctx context.Context) ([]learning.PatternStats, error)
}

// MemoryReader returns recent confluence summaries
type MemoryReader interface {
	Recent(ctx context.Context, symbol, timeframe string, n int) ([]memory.Entry, error)
}

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	config       ServerConfig
	analytics    Analytics
	market       CandleSource
	learning     LearningStats
	memory       MemoryReader
	jwt          *auth.JWTManager
	authHandlers *auth.Handlers
	hub          *WSHub
	health       map[string]HealthCheck
	rateLimiter  *RateLimiter
	upgrader     websocket.Upgrader
	logger       *logging.Logger
	startedAt    time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ProductionMode  bool
	AllowedOrigins  []string
	RateLimit       float64 // requests per second per client, 0 disables
	RateBurst       int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DefaultLimit    int // candles fetched by GET /api/analyze/:symbol
	DefaultInterval string
}

// Dependencies are the collaborators a Server is built from. Every field
// except Analytics may be nil.
type Dependencies struct {
	Analytics    Analytics
	Market       CandleSource
	Learning     LearningStats
	Memory       MemoryReader
	Bus          *events.EventBus
	JWT          *auth.JWTManager // nil disables auth
	AuthHandlers *auth.Handlers
	HealthChecks map[string]HealthCheck
	Logger       *logging.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 200
	}
	if config.DefaultInterval == "" {
		config.DefaultInterval = "1h"
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || (len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:       router,
		config:       config,
		analytics:    deps.Analytics,
		market:       deps.Market,
		learning:     deps.Learning,
		memory:       deps.Memory,
		jwt:          deps.JWT,
		authHandlers: deps.AuthHandlers,
		health:       deps.HealthChecks,
		upgrader:     newUpgrader(config.AllowedOrigins),
		logger:       logger.WithComponent("api"),
		startedAt:    time.Now(),
	}
	if config.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(config.RateLimit, config.RateBurst)
	}
	if deps.Bus != nil {
		s.hub = InitWebSocket(deps.Bus, s.logger)
	}

	s.setupRoutes()
	return s
}

// rateLimitMiddleware rejects clients that exceed their token bucket
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimiter != nil && !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.authHandlers != nil {
		s.router.POST("/api/auth/token", s.rateLimitMiddleware(), s.authHandlers.IssueToken)
	}

	api := s.router.Group("/api", s.rateLimitMiddleware(), auth.Middleware(s.jwt))
	{
		api.POST("/analyze", s.handleAnalyze)
		api.GET("/analyze/:symbol", s.handleAnalyzeSymbol)
		api.GET("/status", s.handleStatus)

		system := api.Group("/system")
		system.POST("/pause", s.handlePause)
		system.POST("/resume", s.handleResume)
		system.POST("/shutdown", s.handleShutdown)

		api.POST("/outcomes", s.handleOutcome)
		api.GET("/learning/stats", s.handleLearningStats)
		api.GET("/memory/:symbol/:timeframe", s.handleMemory)
	}

	s.router.GET("/ws", auth.Middleware(s.jwt), s.handleWebSocket)
}

// Router exposes the handler for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	readTimeout := s.config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := s.config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth runs the backing service checks
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.health))
	healthy := true
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		checks[name] = "healthy"
	}

	body := gin.H{
		"status":         "healthy",
		"checks":         checks,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.analytics != nil {
		body["analytics"] = s.analytics.GetSystemStatus().Status
	}
	if s.hub != nil {
		body["ws_clients"] = s.hub.GetClientCount()
	}
	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
