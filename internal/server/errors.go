package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"github.com/learnsphere/tutorpay/internal/gateway"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	payoutdomain "github.com/learnsphere/tutorpay/internal/payout/domain"
	"github.com/learnsphere/tutorpay/internal/webhook"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

// ErrorHandlingMiddleware renders the last gin error after the handler chain
// unless a response was already written.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: errorCode(err),
		}
	case isBusinessRuleError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "business_rule_violation",
			Message: errorCode(err),
		}
	case errors.Is(err, gateway.ErrInvalidSignature),
		errors.Is(err, gateway.ErrWebhookSecretMissing):
		return http.StatusBadRequest, errorPayload{
			Type:    "signature_mismatch",
			Message: "signature verification failed",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, intentdomain.ErrMissingFields),
		errors.Is(err, intentdomain.ErrInvalidProductType),
		errors.Is(err, intentdomain.ErrInvalidPrice),
		errors.Is(err, intentdomain.ErrOrderMismatch),
		errors.Is(err, webhook.ErrMalformedEnvelope),
		errors.Is(err, webhook.ErrMissingOrderID),
		errors.Is(err, webhook.ErrMissingReferenceID):
		return true
	default:
		return false
	}
}

func isBusinessRuleError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrAlreadyEnrolled),
		errors.Is(err, catalogdomain.ErrCapacityExceeded),
		errors.Is(err, catalogdomain.ErrStudentInactive),
		errors.Is(err, catalogdomain.ErrProductInactive),
		errors.Is(err, intentdomain.ErrIntentExpired),
		errors.Is(err, intentdomain.ErrTransitionConflict):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, intentdomain.ErrIntentNotFound),
		errors.Is(err, catalogdomain.ErrStudentNotFound),
		errors.Is(err, catalogdomain.ErrProductNotFound),
		errors.Is(err, catalogdomain.ErrEducatorNotFound),
		errors.Is(err, payoutdomain.ErrPayoutNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// classifyErrorForLog labels request log lines without leaking messages.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status >= 400:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
