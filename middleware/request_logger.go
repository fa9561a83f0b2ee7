package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractgraph/pkg/logger"
)

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger logs each request once it completes. Requests addressing a
// contract are logged with its id.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		url := *c.Request.URL

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", url.Path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if url.RawQuery != "" {
			attrs = append(attrs, "query", url.RawQuery)
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, "contract_id", id)
		}
		if errs := c.Errors.String(); errs != "" {
			attrs = append(attrs, "errors", errs)
		}

		ctx := c.Request.Context()
		logger.WithContext(ctx).Log(ctx, levelForStatus(status), "request completed", attrs...)
	}
}
