package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/bookstore-consent-api/internal/system/constants"
	"github.com/wso2/bookstore-consent-api/internal/system/correlation"
)

// CorrelationIDMiddleware propagates or creates a correlation ID. The ID is
// echoed in the response, stored on the gin context and attached to the
// request context so outbound broker and delivery calls carry it.
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := extractCorrelationID(c)
		if correlationID == "" {
			correlationID = correlation.NewID()
		}
		c.Set(constants.ContextKeyCorrelationID, correlationID)
		c.Header(constants.CorrelationIDHeaderName, correlationID)
		c.Request = c.Request.WithContext(correlation.WithID(c.Request.Context(), correlationID))
		c.Next()
	}
}

func extractCorrelationID(c *gin.Context) string {
	headers := []string{constants.CorrelationIDHeaderName, "X-Request-ID", "X-Trace-ID"}
	for _, header := range headers {
		if id := c.GetHeader(header); id != "" {
			return id
		}
	}
	return ""
}
