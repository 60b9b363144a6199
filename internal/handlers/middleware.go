package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/telemetry"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// CORS allows every origin, and answers preflight requests directly.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization,Idempotency-Key,"+RequestIDHeader)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID takes X-Request-ID from the client or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request. Health and metrics probes are skipped.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		switch path {
		case "/health", "/metrics":
			return
		case "":
			path = c.Request.URL.Path
		}

		log.Info("request",
			zap.String("request_id", c.GetString(RequestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("caller", callerIdentity(c)),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// FlushTelemetry publishes buffered metrics once the response is written.
func FlushTelemetry(rec telemetry.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		rec.Flush(c.Request.Context())
	}
}
