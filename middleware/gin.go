package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey is the gin context key holding the request's *core.Decision.
const ContextKey = "signalfence.decision"

// Gin returns a gin middleware that aborts denied requests with the same status, headers
// and JSON body as Protect.
func Gin(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := engine.Protect(c.Request)
		status, body := Respond(c.Writer.Header(), d, engine.Config().Mode, time.Now())
		if body != nil {
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Set(ContextKey, d)
		c.Next()
	}
}
