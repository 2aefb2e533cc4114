package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nathanyu/trading-game/internal/telemetry"
)

// Tracing starts a server span per request. Game ids are recorded as an
// attribute, never in the span name.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := route(c)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", path),
			attribute.String("http.target", c.Request.URL.Path),
			attribute.String("http.user_agent", c.Request.UserAgent()),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, attribute.String("game.id", id))
		}

		ctx, span := telemetry.Tracer.Start(c.Request.Context(), "HTTP "+c.Request.Method+" "+path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Float64("http.duration_ms", float64(time.Since(start).Milliseconds())),
		)
		if status >= 400 {
			span.SetStatus(codes.Error, "HTTP error")
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
