package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verisafe/account-integrity/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID threads a correlation id through the request: honored from the
// inbound header when present (gateway webhook deliveries often carry one),
// minted otherwise, and echoed back on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, id)
		c.Set("request_id", id)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logger.RequestIDKey{}, id),
		)

		c.Next()
	}
}
