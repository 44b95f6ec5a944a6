package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FailReference reference, для которого мок отвечает 503
const FailReference = "fail-5xx"

var (
	mockMinAmount = decimal.RequireFromString("0.01")
	mockMaxAmount = decimal.RequireFromString("1000.00")
)

// RegisterMock детерминированный мок шлюза: /authorize и /void
func RegisterMock(r gin.IRouter) {
	r.POST("/authorize", mockAuthorize)
	r.POST("/void", mockVoid)
}

func mockAuthorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request: " + err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request: " + err.Error()})
		return
	}
	switch {
	case amount.LessThan(mockMinAmount):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Amount must be at least 0.01"})
	case amount.GreaterThan(mockMaxAmount):
		c.JSON(http.StatusPaymentRequired, errorResponse{Error: "Insufficient funds"})
	case req.Reference == FailReference:
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "Payment service temporarily unavailable"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"authorizationId": "AUTH_" + uuid.NewString(),
			"status":          "AUTHORIZED",
			"amount":          amount.StringFixed(2),
		})
	}
}

func mockVoid(c *gin.Context) {
	var req voidRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AuthorizationID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Authorization ID is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorizationId": req.AuthorizationID, "status": "VOIDED"})
}
