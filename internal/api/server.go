// Package api exposes the control-plane HTTP surface over the bot
// orchestrator: arm/disarm/kill, settings, status, history and the direct
// venue passthroughs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/logging"
)

// RateLimiter is a simple in-memory per-key sliding window limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow reports whether another request fits in the key's window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	windowStart := time.Now().Add(-r.window)
	recent := r.requests[key][:0]
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, time.Now())
	return true
}

// Server is the HTTP API server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	bot         *bot.Bot
	cfg         *config.Config
	log         *logging.Logger
	rateLimiter *RateLimiter
}

// NewServer builds the router and registers all routes.
func NewServer(cfg *config.Config, b *bot.Bot, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.ServerConfig.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.ServerConfig.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		bot:         b,
		cfg:         cfg,
		log:         log.WithComponent("api"),
		rateLimiter: NewRateLimiter(120, time.Minute),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	trading := s.router.Group("/trading")
	if s.cfg.AuthConfig.Enabled {
		trading.Use(authMiddleware(s.cfg.AuthConfig.JWTSecret))
	}
	trading.Use(s.rateLimitMiddleware())

	trading.POST("/arm", s.handleArm)
	trading.POST("/disarm", s.handleDisarm)
	trading.POST("/kill", s.handleKill)
	trading.POST("/reset-kill", s.handleResetKill)
	trading.POST("/start", s.handleStart)
	trading.POST("/stop", s.handleStop)
	trading.POST("/register-agent", s.handleRegisterAgent)

	trading.GET("/settings", s.handleGetSettings)
	trading.POST("/settings", s.handleSetSettings)

	trading.GET("/status", s.handleStatus)
	trading.GET("/bot-status", s.handleBotStatus)
	trading.GET("/debug", s.handleDebug)
	trading.GET("/grok-usage", s.handleGrokUsage)

	trading.GET("/trade-history", s.handleTradeHistory)
	trading.GET("/stats", s.handleStats)
	trading.GET("/performance", s.handlePerformance)
	trading.GET("/leaderboard", s.handleLeaderboard)

	trading.POST("/close-all", s.handleCloseAll)
	trading.POST("/cancel-all-orders", s.handleCancelAllOrders)
	trading.GET("/open-orders", s.handleOpenOrders)
	trading.GET("/positions", s.handlePositions)
}

// rateLimitMiddleware limits venue-touching endpoints per path. Status and
// history endpoints read internal state only and are exempt.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	exempt := map[string]bool{
		"/trading/status":        true,
		"/trading/bot-status":    true,
		"/trading/debug":         true,
		"/trading/grok-usage":    true,
		"/trading/trade-history": true,
		"/trading/stats":         true,
		"/trading/performance":   true,
		"/trading/leaderboard":   true,
		"/trading/settings":      true,
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if exempt[path] {
			c.Next()
			return
		}
		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many requests to this endpoint",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Start runs the listener until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.ServerConfig.Host, s.cfg.ServerConfig.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.ServerConfig.WriteTimeout) * time.Second,
	}
	s.log.Info("api server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"connection": s.bot.Markets().Status(),
	})
}
