package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/auth"
	"metaapi-trading-bot/internal/bot"
	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/logging"
)

// RateLimiter limits requests per key, one token bucket per key
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

// NewRateLimiter allows limit requests per window for each key
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.every, r.burst)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// BotController is the part of the bot manager the API drives
type BotController interface {
	Start(ctx context.Context) error
	Stop() error
	Status(ctx context.Context) bot.Status
}

// AccountSource reads broker account balances
type AccountSource interface {
	AccountInfo(ctx context.Context, platform string) (*broker.AccountInfo, error)
}

// UsageSource reports combined capital usage per platform
type UsageSource interface {
	CombinedUsage(ctx context.Context, platform string) (float64, error)
}

// MarketHours reports whether an instrument is tradable now
type MarketHours interface {
	IsOpen(commodity string) bool
}

// Deps are the components behind the HTTP API
type Deps struct {
	Store    database.Store
	Bot      BotController
	Accounts AccountSource
	Usage    UsageSource
	Hours    MarketHours
	Auth     *auth.Service
	Bus      *events.EventBus
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	deps         Deps
	config       config.ServerConfig
	hub          *WSHub
	loginLimiter *RateLimiter
	logger       zerolog.Logger
}

// NewServer creates a new API server. The websocket hub starts with Start
// or, in tests, with StartHub.
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Bot == nil {
		return nil, errors.New("api server needs a store and a bot controller")
	}
	if deps.Auth == nil {
		var err error
		if deps.Auth, err = auth.NewService(config.AuthConfig{}, logger); err != nil {
			return nil, err
		}
	}

	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	origins := cfg.AllowedOriginList()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:       router,
		deps:         deps,
		config:       cfg,
		hub:          NewWSHub(logger),
		loginLimiter: NewRateLimiter(10, time.Minute),
		logger:       logging.WithComponent(logger, "API"),
	}

	s.setupRoutes()

	if deps.Bus != nil {
		deps.Bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws/events", s.handleWebSocket)

	api := s.router.Group("/api")
	api.POST("/auth/login", s.loginRateLimit(), s.deps.Auth.LoginHandler)

	protected := api.Group("")
	protected.Use(s.deps.Auth.RequireOperator())
	{
		protected.POST("/bot/start", s.handleBotStart)
		protected.POST("/bot/stop", s.handleBotStop)
		protected.GET("/bot/status", s.handleBotStatus)

		protected.GET("/trades", s.handleListTrades)
		protected.GET("/trades/stats", s.handleTradeStats)
		protected.GET("/trade-settings/:ticket", s.handleGetTradeSettings)
		protected.PUT("/trade-settings/:ticket", s.handlePutTradeSettings)

		protected.GET("/settings", s.handleGetSettings)
		protected.PUT("/settings", s.handlePutSettings)
		protected.POST("/settings/reset", s.handleResetSettings)

		protected.GET("/commodities", s.handleCommodities)
		protected.GET("/platforms", s.handlePlatforms)
	}
}

// loginRateLimit slows down password guessing per client address
func (s *Server) loginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.loginLimiter.Allow(c.ClientIP()) {
			errorResponse(c, http.StatusTooManyRequests, "too many login attempts, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Handler returns the HTTP handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartHub runs the websocket hub until ctx is done
func (s *Server) StartHub(ctx context.Context) {
	go s.hub.Run(ctx)
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.StartHub(ctx)
	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	running := s.deps.Bot.Status(ctx).Running

	if err := s.deps.Store.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":      "unhealthy",
			"database":    "unhealthy",
			"bot_running": running,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"database":    "healthy",
		"bot_running": running,
		"clients":     s.hub.GetClientCount(),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
