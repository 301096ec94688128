package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stock-prediction-api/internal/assistant"
	"stock-prediction-api/internal/auth"
	"stock-prediction-api/internal/cache"
	"stock-prediction-api/internal/features"
	"stock-prediction-api/internal/marketdata"
	"stock-prediction-api/internal/predict"
	"stock-prediction-api/internal/strategy"
)

const maxHorizon = 30

// handlePredict serves GET /api/predict?symbol=&period=&model=&horizon=
func (s *Server) handlePredict(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		badRequest(c, "missing_symbol", "query parameter 'symbol' is required")
		return
	}

	period := c.DefaultQuery("period", s.defaultPeriod)
	if !marketdata.ValidPeriods[period] {
		badRequest(c, "invalid_period", "period must be one of 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, max")
		return
	}

	model := c.DefaultQuery("model", "lstm")

	horizon := s.predictCfg.Horizon
	if raw := c.Query("horizon"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h < 1 || h > maxHorizon {
			badRequest(c, "invalid_horizon", "horizon must be an integer between 1 and 30")
			return
		}
		horizon = h
	}

	key := cache.ForecastKey(symbol, period, horizon, model, features.FeatureSetVersion)
	if s.deps.Cache != nil {
		var cached predict.Forecast
		if err := s.deps.Cache.Get(c.Request.Context(), key, &cached); err == nil {
			c.JSON(http.StatusOK, Sanitize(cached))
			return
		}
	}

	forecast, err := s.deps.Predict.Predict(c.Request.Context(), symbol, period, model, horizon)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Set(c.Request.Context(), key, forecast)
	}
	c.JSON(http.StatusOK, Sanitize(forecast))
}

// handleListModels serves GET /api/models
func (s *Server) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.deps.Predict.Registry().Names()})
}

// handleStrategy serves GET /api/strategy?name=&symbol=&period=
func (s *Server) handleStrategy(c *gin.Context) {
	name := c.DefaultQuery("name", "ema_crossover")
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		badRequest(c, "missing_symbol", "query parameter 'symbol' is required")
		return
	}

	period := c.DefaultQuery("period", s.defaultPeriod)
	if !marketdata.ValidPeriods[period] {
		badRequest(c, "invalid_period", "period must be one of 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, max")
		return
	}

	key := cache.StrategyKey(name, symbol, period, features.FeatureSetVersion)
	if s.deps.Cache != nil {
		var cached strategy.Result
		if err := s.deps.Cache.Get(c.Request.Context(), key, &cached); err == nil {
			c.JSON(http.StatusOK, Sanitize(cached))
			return
		}
	}

	result, err := s.deps.Strategy.Run(c.Request.Context(), name, symbol, period)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Set(c.Request.Context(), key, result)
	}
	c.JSON(http.StatusOK, Sanitize(result))
}

// handleListStrategies serves GET /api/strategies
func (s *Server) handleListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.deps.Strategy.Registry().Names()})
}

// handleQuote serves GET /api/quote?symbol=
func (s *Server) handleQuote(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		badRequest(c, "missing_symbol", "query parameter 'symbol' is required")
		return
	}

	quote, err := s.deps.Source.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// handleAssistantChat serves POST /api/assistant/chat
func (s *Server) handleAssistantChat(c *gin.Context) {
	var req assistant.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "body must contain a non-empty 'message'")
		return
	}

	userID := uuid.Nil
	if raw, ok := auth.UserID(c); ok {
		if parsed, err := uuid.Parse(raw); err == nil {
			userID = parsed
		}
	}

	resp, err := s.deps.Assistant.Chat(c.Request.Context(), userID, req.Message)
	if err != nil {
		s.logger.Error().Err(err).Msg("assistant chat failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "assistant_failed",
			"message": "the assistant could not answer, try again later",
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func badRequest(c *gin.Context, kind, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": kind, "message": message})
}

// respondError maps core errors onto status codes: client-origin problems to
// 4xx, core-origin failures to 5xx.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, predict.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_model", "message": err.Error()})
	case errors.Is(err, strategy.ErrUnknownStrategy):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_strategy", "message": err.Error()})
	case errors.Is(err, marketdata.ErrDataUnavailable):
		c.JSON(http.StatusNotFound, gin.H{"error": "data_unavailable", "message": err.Error()})
	case errors.Is(err, features.ErrTooShort), errors.Is(err, predict.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_data", "message": err.Error()})
	case errors.Is(err, features.ErrDegenerate):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "degenerate_data", "message": err.Error()})
	case errors.Is(err, predict.ErrModelFit):
		s.logger.Error().Err(err).Msg("model fit failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "model_fit_failed", "message": err.Error()})
	case errors.Is(err, predict.ErrHorizonInconsistency):
		s.logger.Error().Err(err).Msg("evaluation produced no complete window")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation_failed", "message": err.Error()})
	default:
		s.logger.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "unexpected failure"})
	}
}
