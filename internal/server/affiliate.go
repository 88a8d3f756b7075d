package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	affiliateservice "github.com/smallbiznis/payout/internal/affiliate/service"
	"github.com/smallbiznis/payout/pkg/db/pagination"
)

type cancelPayoutRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type bulkMarkPaidRequest struct {
	IDs []snowflake.ID `json:"ids" validate:"required,min=1,max=500"`
}

type bulkCancelRequest struct {
	IDs    []snowflake.ID `json:"ids" validate:"required,min=1,max=500"`
	Reason string         `json:"reason" validate:"max=500"`
}

type createCommissionRequest struct {
	FinalPrice *decimal.Decimal `json:"final_price" validate:"required"`
}

func (s *Server) ListAffiliatePayouts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status           string `form:"status"`
		ReferredByUserID string `form:"referred_by_user_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.validate.Struct(query.Pagination); err != nil {
		AbortWithError(c, fromValidator(err))
		return
	}

	referrer, err := parseOptionalSnowflakeID(query.ReferredByUserID)
	if err != nil {
		AbortWithError(c, newValidationError("referred_by_user_id", "invalid_referred_by_user_id", "invalid referred_by_user_id"))
		return
	}

	req := affiliateservice.ListRequest{
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	}
	if referrer != nil {
		req.ReferredByUserID = *referrer
	}

	items, pageInfo, err := s.payouts.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": pageInfo})
}

func (s *Server) GetAffiliatePayout(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	payout, err := s.payouts.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) MarkAffiliatePayoutPaid(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	payout, err := s.payouts.MarkPaid(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) CancelAffiliatePayout(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	var req cancelPayoutRequest
	if !s.bindJSON(c, &req) {
		return
	}

	payout, err := s.payouts.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) BulkMarkAffiliatePayoutsPaid(c *gin.Context) {
	var req bulkMarkPaidRequest
	if !s.bindJSON(c, &req) {
		return
	}

	result, err := s.payouts.BulkMarkPaid(c.Request.Context(), req.IDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// BulkCancelAffiliatePayouts leaves reason checks to the service so each id
// reports its own failure.
func (s *Server) BulkCancelAffiliatePayouts(c *gin.Context) {
	var req bulkCancelRequest
	if !s.bindJSON(c, &req) {
		return
	}

	result, err := s.payouts.BulkCancel(c.Request.Context(), req.IDs, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CreateCommission(c *gin.Context) {
	usageID, ok := s.pathID(c)
	if !ok {
		return
	}

	var req createCommissionRequest
	if !s.bindJSON(c, &req) {
		return
	}

	payout, err := s.payouts.Calculate(c.Request.Context(), usageID, *req.FinalPrice)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) pathID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}

func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		AbortWithError(c, invalidRequestError())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		AbortWithError(c, fromValidator(err))
		return false
	}
	return true
}
