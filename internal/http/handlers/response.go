// Package handlers implements the HTTP sidecar endpoints: the verification
// callback and the operator API over admissions, balances and stored files.
//
// Every failure is written as an ErrorResponse with a stable code from
// errors.go, for example:
//
//	HTTP/1.1 403 Forbidden
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_owner",
//	  "message": "file belongs to another user"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/filegate-bot/internal/http/middleware"
	"github.com/tbourn/filegate-bot/internal/services"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"file_not_found"`
	// Human-readable message
	Message string `json:"message" example:"file not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService maps a service error to a response. Unknown errors become 500
// with the given code; their text is logged but not returned.
func failService(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, services.ErrInvalidUser):
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user id must be a positive integer")
	case errors.Is(err, services.ErrFileNotFound):
		fail(c, http.StatusNotFound, ErrCodeFileNotFound, "file not found")
	case errors.Is(err, services.ErrNotOwner):
		fail(c, http.StatusForbidden, ErrCodeNotOwner, "file belongs to another user")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, code, "internal error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
