package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smarteros/backend/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size. Webhook
// deliveries are small; anything above the limit is rejected before the
// signature is even checked.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
			))
			return
		}

		// Wrap the body with a limited reader for streaming requests
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
