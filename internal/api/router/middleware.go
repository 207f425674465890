package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/handler"
	"github.com/cuongbtq/voiceover-be/internal/auth"
	"github.com/cuongbtq/voiceover-be/internal/metrics"
	"github.com/cuongbtq/voiceover-be/internal/ratelimit"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		}
		if caller, ok := handler.CallerFrom(c); ok {
			attrs = append(attrs, slog.String("user_id", caller.UserID), slog.Bool("system", caller.System))
		}
		logger.Info("HTTP Request", attrs...)

		for _, e := range c.Errors {
			logger.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, "+auth.SystemSecretHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route template.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// AuthMiddleware resolves the session user. With allowSystem set, a request
// carrying the system secret passes as the system caller instead.
func AuthMiddleware(sessions *auth.SessionResolver, allowSystem bool, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowSystem && sessions.IsSystem(c.Request) {
			handler.SetCaller(c, domain.SystemCaller(), nil)
			c.Next()
			return
		}

		user, err := sessions.Resolve(c.Request)
		if err != nil {
			handler.RespondError(c, logger, err)
			return
		}
		handler.SetCaller(c, domain.UserCaller(user.ID), user)
		c.Next()
	}
}

// RequireSystem admits only requests carrying the system secret.
func RequireSystem(sessions *auth.SessionResolver, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessions.IsSystem(c.Request) {
			handler.RespondError(c, logger, domain.ErrForbidden)
			return
		}
		handler.SetCaller(c, domain.SystemCaller(), nil)
		c.Next()
	}
}

// RateLimit admits at most rule.Limit requests of action per caller within
// rule.Window. Unauthenticated callers are keyed by client IP.
func RateLimit(limiter *ratelimit.Limiter, action string, rule ratelimit.Rule, m *metrics.Metrics, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || rule.Limit <= 0 {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if caller, ok := handler.CallerFrom(c); ok && caller.UserID != "" {
			subject = caller.UserID
		}

		d := limiter.AdmitRule(action+":"+subject, rule)
		if !d.Allowed {
			m.RateLimited(action)
			logger.Warn("Request rate limited",
				slog.String("action", action),
				slog.String("subject", subject),
				slog.Duration("retry_after", d.RetryAfter),
			)
			handler.RespondError(c, logger, domain.NewRateLimited("too many "+action+" requests", d.RetryAfter))
			return
		}
		c.Next()
	}
}
