package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	"github.com/learnsphere/tutorpay/internal/settlement"
)

type createOrderRequest struct {
	StudentID   snowflake.ID `json:"student_id"`
	ProductType string       `json:"product_type"`
	ProductID   snowflake.ID `json:"product_id"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.limiter.AllowOrder(c.Request.Context(), req.StudentID.String(), c.ClientIP())
	if err == nil && !res.Allowed {
		AbortWithError(c, ErrRateLimited)
		return
	}

	resp, err := s.intentSvc.CreateOrder(c.Request.Context(), intentdomain.CreateOrderRequest{
		StudentID:   req.StudentID,
		ProductType: req.ProductType,
		ProductID:   req.ProductID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("intent_id"))
	if err != nil {
		AbortWithError(c, newValidationError("intent_id", "invalid", "intent id must be numeric"))
		return
	}

	intent, err := s.intentSvc.GetIntent(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, intent)
}

type verifyRequest struct {
	IntentID  snowflake.ID `json:"intent_id"`
	OrderID   string       `json:"order_id"`
	PaymentID string       `json:"payment_id"`
	Signature string       `json:"signature"`
}

type verifyResponse struct {
	Status   intentdomain.Status `json:"status"`
	IntentID snowflake.ID        `json:"intent_id"`
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	intent, err := s.settlement.VerifyPayment(c.Request.Context(), settlement.VerifyRequest{
		IntentID:  req.IntentID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		Status:   intent.Status,
		IntentID: intent.ID,
	})
}
