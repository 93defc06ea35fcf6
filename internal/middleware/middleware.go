// Package middleware holds the gin middleware shared by every route.
package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/consts"
	"github.com/ncobase/keyvault/ctxutil"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/logging/observes"
	"github.com/ncobase/keyvault/net/resp"
	"github.com/ncobase/keyvault/security/jwt"
)

const traceHeader = consts.TraceKey

// Trace attaches a trace id to the request context and echoes it back.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(traceHeader); id != "" {
			ctx = ctxutil.SetTraceID(ctx, id)
		}
		ctx, id := ctxutil.EnsureTraceID(ctx)
		ctx = ctxutil.WithGinContext(ctx, c)
		c.Request = c.Request.WithContext(ctx)
		c.Header(traceHeader, id)
		c.Next()
	}
}

// Logger logs one line per request.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// Report sends panics and 5xx responses to sentry. Panics are re-raised for
// gin.Recovery to answer.
func Report() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				observes.CaptureError(c.Request.Context(), fmt.Errorf("panic: %v", r))
				panic(r)
			}
		}()
		c.Next()
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			observes.CaptureError(c.Request.Context(),
				fmt.Errorf("%s %s returned %d", c.Request.Method, c.FullPath(), status))
		}
	}
}

// Auth resolves the bearer token to a user id. Paths in whitelist pass
// through untouched.
func Auth(tm *jwt.TokenManager, whitelist []string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if slices.Contains(whitelist, c.FullPath()) {
			c.Next()
			return
		}

		header := c.GetHeader(consts.AuthorizationKey)
		token, ok := strings.CutPrefix(header, consts.BearerKey)
		if !ok || token == "" {
			resp.Fail(c.Writer, resp.UnAuthorized("missing bearer token"))
			c.Abort()
			return
		}

		userID, err := tm.UserIDFromToken(token)
		if err != nil {
			log.Warn(c.Request.Context(), "Token validation failed", "error", err)
			resp.Fail(c.Writer, resp.UnAuthorized("invalid or expired token"))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(ctxutil.SetUserID(c.Request.Context(), userID))
		c.Next()
	}
}
