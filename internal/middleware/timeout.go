package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"shopchat/pkg/utils"
)

// Timeout bounds the request context. Handlers pass it to the store, so a slow
// query returns early; if nothing was written by then the client gets a timeout.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			utils.Error(c, utils.CodeTimeout, "Request timeout")
		}
	}
}
