package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gobinathr25/Supertrend/internal/risk"
)

// getStatus returns the full dashboard snapshot.
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Snapshot(c.Request.Context()))
}

// getPositions returns both legs' position state.
func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.Engine.Positions()})
}

// getTrades lists the current trading day's trades.
func (s *Server) getTrades(c *gin.Context) {
	trades, err := s.Engine.TodayTrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// getLogs returns the newest strategy log rows.
func (s *Server) getLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := s.DB.ListRecentLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// getRiskLimits returns the operator-tunable limits.
func (s *Server) getRiskLimits(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.RiskLimits())
}

// updateRiskLimits replaces the limits. Takes effect on the next entry
// admission; open positions are untouched.
func (s *Server) updateRiskLimits(c *gin.Context) {
	var l risk.Limits
	if err := c.BindJSON(&l); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if err := s.Engine.UpdateRiskLimits(l); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_LIMITS",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, s.Engine.RiskLimits())
}

// startEngine begins trading.
func (s *Server) startEngine(c *gin.Context) {
	if err := s.Engine.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":  "START_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// stopEngine halts trading and reconciles open orders.
func (s *Server) stopEngine(c *gin.Context) {
	if err := s.Engine.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":  "STOP_FAILED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
