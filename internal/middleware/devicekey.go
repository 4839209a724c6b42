package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

const deviceKeyHeader = "X-Device-Key"

// DeviceKey returns a middleware that authenticates IoT scale requests
// by shared secret. Devices send the key either in X-Device-Key or as a
// bearer token.
func DeviceKey(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(deviceKeyHeader)
		if provided == "" {
			provided = NormalizeToken(c.GetHeader("Authorization"))
		}
		if provided == "" || secret == "" ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}
