package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const gatewaySignatureHeader = "X-Gateway-Signature"

// HandleGatewayWebhook reads the raw body exactly once; the same bytes are
// signature-verified and decoded downstream, never a re-parsed copy.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	res, err := s.limiter.AllowWebhook(c.Request.Context(), c.ClientIP())
	if err == nil && !res.Allowed {
		AbortWithError(c, ErrRateLimited)
		return
	}

	signature := strings.TrimSpace(c.GetHeader(gatewaySignatureHeader))
	if signature == "" {
		AbortWithError(c, newValidationError(gatewaySignatureHeader, "required", "signature header is required"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), body, signature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
