package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerSettlement runs a manual settlement. Failures keep a fixed prefix
// followed by the underlying error text.
func (s *Server) TriggerSettlement(c *gin.Context) {
	report, err := s.settlement.TriggerSettlement(c.Request.Context())
	if err != nil {
		s.log.Warn("manual settlement failed", zap.Error(err))
		status, payload := mapError(err)
		payload.Message = "settlement trigger failed: " + err.Error()
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) GetEligibilitySummary(c *gin.Context) {
	summary, err := s.settlement.EligibilitySummary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetSettlementConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.settlement.Config()})
}

func (s *Server) GetHealth(c *gin.Context) {
	healthy := s.settlement.Healthy(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy})
}
