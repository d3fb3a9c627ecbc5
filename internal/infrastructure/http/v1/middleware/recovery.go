// Package middleware provides HTTP middleware components.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"ledgertx/internal/core/apperror"
	appctx "ledgertx/internal/core/context"
	"ledgertx/pkg/logger"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR response.
// It runs outermost, so the panic has already unwound past ErrorHandler and
// the response is written here. A pending idempotency key is marked failed
// so a retry replays the error instead of waiting for the key to go stale.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}

			ctx := c.Request.Context()
			logger.Error(ctx, "panic recovered",
				"panic", p,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)

			body := gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": appctx.GetRequestID(ctx)},
			}
			failIdempotency(c, http.StatusInternalServerError, body)
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}
