package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/filegate-bot/internal/utils"
)

const (
	// HeaderAPIKey carries the operator key for the read/delete API.
	HeaderAPIKey = "X-API-Key"
	// HeaderUserID identifies the Telegram user on whose behalf a call is made.
	HeaderUserID = "X-User-ID"

	userIDKey = "userID"
)

// RequireAPIKey rejects requests whose X-API-Key does not equal key.
// An empty key rejects every request.
func RequireAPIKey(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(HeaderAPIKey))
		if key == "" || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid api key",
			})
			return
		}
		c.Next()
	}
}

// Requester parses X-User-ID when present and stores the numeric id in the
// Gin context. Malformed values are ignored here; handlers that need a
// requester reject them via UserIDFrom.
func Requester() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := utils.ParseUserID(c.GetHeader(HeaderUserID)); err == nil {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

// UserIDFrom returns the requester stored by Requester.
func UserIDFrom(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
