package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ict-engine/internal/analytics"
	"ict-engine/internal/confluence"
	"ict-engine/internal/learning"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"

	"github.com/gin-gonic/gin"
)

const maxCandleLimit = 1000

// AnalyzeRequest carries candles supplied by the caller
type AnalyzeRequest struct {
	Symbol    string          `json:"symbol" binding:"required"`
	Timeframe string          `json:"timeframe" binding:"required"`
	Candles   []market.Candle `json:"candles" binding:"required"`
}

// OutcomeRequest resolves a learning record
type OutcomeRequest struct {
	RecordID string  `json:"record_id" binding:"required"`
	Outcome  string  `json:"outcome" binding:"required"`
	ProfitR  float64 `json:"profit_r"`
	Feedback string  `json:"feedback"`
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}

// handleAnalyze runs the pipeline over candles from the request body
// POST /api/analyze
func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	s.runAnalysis(c, req.Candles, strings.ToUpper(req.Symbol), req.Timeframe)
}

// handleAnalyzeSymbol fetches candles from market data and runs the pipeline
// GET /api/analyze/:symbol?timeframe=1h&limit=200
func (s *Server) handleAnalyzeSymbol(c *gin.Context) {
	if s.market == nil {
		errorJSON(c, http.StatusServiceUnavailable, "MARKET_DATA_UNAVAILABLE", "no market data source configured")
		return
	}

	symbol := strings.ToUpper(c.Param("symbol"))
	timeframe := c.DefaultQuery("timeframe", s.config.DefaultInterval)
	limit := s.config.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxCandleLimit {
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	candles, err := s.market.GetCandles(c.Request.Context(), symbol, timeframe, limit)
	if err != nil {
		logging.FromContext(c.Request.Context()).WithError(err).Warn("Market data fetch failed", "symbol", symbol, "timeframe", timeframe)
		errorJSON(c, http.StatusBadGateway, "MARKET_DATA_ERROR", err.Error())
		return
	}
	s.runAnalysis(c, candles, symbol, timeframe)
}

func (s *Server) runAnalysis(c *gin.Context, candles []market.Candle, symbol, timeframe string) {
	result, err := s.analytics.PerformCompleteAnalysis(c.Request.Context(), candles, symbol, timeframe)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, analytics.ErrNotActive):
		c.JSON(http.StatusConflict, result)
	case errors.Is(err, confluence.ErrInvalidCandles):
		c.JSON(http.StatusBadRequest, result)
	default:
		logging.FromContext(c.Request.Context()).WithError(err).Error("Analysis failed", "symbol", symbol)
		c.JSON(http.StatusInternalServerError, result)
	}
}

// GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.analytics.GetSystemStatus())
}

func (s *Server) handlePause(c *gin.Context) {
	s.lifecycle(c, s.analytics.PauseAnalyticsSystem)
}

func (s *Server) handleResume(c *gin.Context) {
	s.lifecycle(c, s.analytics.ResumeAnalyticsSystem)
}

func (s *Server) handleShutdown(c *gin.Context) {
	s.lifecycle(c, s.analytics.ShutdownAnalyticsSystem)
}

func (s *Server) lifecycle(c *gin.Context, fn func() error) {
	if err := fn(); err != nil {
		if errors.Is(err, analytics.ErrInvalidTransition) {
			errorJSON(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
			return
		}
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.analytics.GetSystemStatus().Status})
}

// handleOutcome resolves a pattern detection
// POST /api/outcomes
func (s *Server) handleOutcome(c *gin.Context) {
	var req OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	outcome, err := learning.ParseOutcome(strings.ToUpper(req.Outcome))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_OUTCOME", err.Error())
		return
	}

	err = s.analytics.UpdatePatternOutcome(c.Request.Context(), req.RecordID, outcome, req.ProfitR, req.Feedback)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"record_id": req.RecordID, "outcome": outcome})
	case errors.Is(err, learning.ErrRecordNotFound):
		errorJSON(c, http.StatusNotFound, "RECORD_NOT_FOUND", err.Error())
	case errors.Is(err, learning.ErrAlreadyResolved):
		errorJSON(c, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
	case errors.Is(err, analytics.ErrNotActive):
		errorJSON(c, http.StatusConflict, "NOT_ACTIVE", err.Error())
	case errors.Is(err, analytics.ErrLearningUnavailable):
		errorJSON(c, http.StatusServiceUnavailable, "LEARNING_UNAVAILABLE", err.Error())
	default:
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// GET /api/learning/stats
func (s *Server) handleLearningStats(c *gin.Context) {
	if s.learning == nil {
		errorJSON(c, http.StatusServiceUnavailable, "LEARNING_UNAVAILABLE", "learning system not configured")
		return
	}
	stats, err := s.learning.PatternStats(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": stats})
}

// GET /api/memory/:symbol/:timeframe?n=10
func (s *Server) handleMemory(c *gin.Context) {
	if s.memory == nil {
		errorJSON(c, http.StatusServiceUnavailable, "MEMORY_UNAVAILABLE", "memory system not configured")
		return
	}
	n := 10
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "n must be a positive integer")
			return
		}
		n = v
	}

	symbol := strings.ToUpper(c.Param("symbol"))
	timeframe := c.Param("timeframe")
	entries, err := s.memory.Recent(c.Request.Context(), symbol, timeframe, n)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "timeframe": timeframe, "entries": entries})
}
