// Package api exposes the prediction, strategy, quote and assistant surfaces
// over HTTP and a websocket quote stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stock-prediction-api/config"
	"stock-prediction-api/internal/assistant"
	"stock-prediction-api/internal/auth"
	"stock-prediction-api/internal/cache"
	"stock-prediction-api/internal/database"
	"stock-prediction-api/internal/marketdata"
	"stock-prediction-api/internal/predict"
	"stock-prediction-api/internal/strategy"
)

// Deps carries the services the server routes to. Auth, DB, cache and
// assistant may each be nil; the corresponding surface is then disabled or
// degraded rather than failing startup.
type Deps struct {
	Predict   *predict.Service
	Strategy  *strategy.Service
	Source    marketdata.PriceSource
	Cache     *cache.Service
	Assistant *assistant.Service
	Auth      *auth.Handlers
	JWT       *auth.JWTManager
	DB        *database.DB
}

// Server is the HTTP API server
type Server struct {
	router        *gin.Engine
	httpServer    *http.Server
	cfg           config.ServerConfig
	predictCfg    config.PredictionConfig
	defaultPeriod string
	deps          Deps
	logger        zerolog.Logger
}

// NewServer creates the API server and registers all routes
func NewServer(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.ServerConfig.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(cfg.ServerConfig.AllowedOrigins)
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	defaultPeriod := cfg.MarketDataConfig.DefaultPeriod
	if defaultPeriod == "" {
		defaultPeriod = "1y"
	}

	s := &Server{
		router:        router,
		cfg:           cfg.ServerConfig,
		predictCfg:    cfg.PredictionConfig,
		defaultPeriod: defaultPeriod,
		deps:          deps,
		logger:        logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

// Router exposes the underlying engine for tests
func (s *Server) Router() *gin.Engine { return s.router }

// splitOrigins parses the comma-separated CORS origin list
func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	authEnabled := s.deps.Auth != nil && s.deps.JWT != nil
	if authEnabled {
		s.deps.Auth.RegisterRoutes(s.router.Group("/api"))
	}
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": authEnabled})
	})

	api := s.router.Group("/api")
	{
		api.GET("/predict", s.handlePredict)
		api.GET("/models", s.handleListModels)
		api.GET("/strategy", s.handleStrategy)
		api.GET("/strategies", s.handleListStrategies)
		api.GET("/quote", s.handleQuote)
	}

	if s.deps.Assistant != nil {
		chat := s.router.Group("/api/assistant")
		if authEnabled {
			chat.Use(auth.Middleware(s.deps.JWT))
		}
		chat.POST("/chat", s.handleAssistantChat)
	}

	s.router.GET("/ws", s.handleQuoteStream)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "this endpoint does not exist",
		})
	})
}

// Start runs the HTTP server until it is shut down
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth reports server, database and cache health
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "healthy"}

	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(ctx); err != nil {
			body["database"] = "unhealthy"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "healthy"
		}
	} else {
		body["database"] = "disabled"
	}

	if s.deps.Cache != nil {
		if s.deps.Cache.IsHealthy() {
			body["cache"] = "healthy"
		} else {
			body["cache"] = "unhealthy"
			if body["status"] == "healthy" {
				body["status"] = "degraded"
			}
		}
	} else {
		body["cache"] = "disabled"
	}

	c.JSON(status, body)
}
