package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	"github.com/tidewatch/aquameter/internal/identity"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInternal           = errors.New("internal_error")
)

// ErrorHandlingMiddleware translates errors attached to the context into
// one JSON error body. Handlers call AbortWithError and return; nothing
// else writes error responses.
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

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    validationErrorCode(err),
			Message: "validation error",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, devicedomain.ErrInvalidCredential),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, alertdomain.ErrAlreadyResolved):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    "alert_already_resolved",
			Message: "alert is already resolved",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, readingdomain.ErrStoreUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, readingdomain.ErrInvalidDeviceID),
		errors.Is(err, readingdomain.ErrInvalidFlowRate),
		errors.Is(err, readingdomain.ErrInvalidConsumption),
		errors.Is(err, readingdomain.ErrInvalidPulseCount),
		errors.Is(err, readingdomain.ErrInvalidTimestamp),
		errors.Is(err, readingdomain.ErrInvalidDateFilter),
		errors.Is(err, alertdomain.ErrInvalidAlertID),
		errors.Is(err, devicedomain.ErrDeviceInactive):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, devicedomain.ErrDeviceNotFound),
		errors.Is(err, alertdomain.ErrAlertNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	code := err.Error()
	// Wrapped sentinels carry detail after the code; keep the code only.
	if idx := strings.IndexByte(code, ':'); idx > 0 {
		code = code[:idx]
	}
	return code
}
