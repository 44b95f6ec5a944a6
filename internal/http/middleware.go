package httpapi

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ordercore/internal/events"
	"ordercore/internal/observability"
)

const headerRequestID = "X-Request-ID"

// observe W3C trace context, X-Request-ID, логгер запроса в контексте и HTTP-метрики
func (s *Server) observe() gin.HandlerFunc {
	prop := otel.GetTextMapPropagator()
	return func(c *gin.Context) {
		ctx := prop.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(headerRequestID, rid)

		fields := []zap.Field{
			zap.String("request_id", rid),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
		}
		log := s.log.With(fields...)
		ctx = observability.WithLogger(ctx, log)
		ctx = events.WithCorrelationID(ctx, rid)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, observability.StatusClass(status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		log.Info("request",
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("size", c.Writer.Size()))
	}
}

// recovery паника превращается в 500 problem+json
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				observability.LoggerFrom(c.Request.Context(), s.log).
					Error("panic recovered", zap.Bool("defect", true), zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
				p := internalProblem()
				p.Instance = c.Request.URL.Path
				writeProblem(c, p)
			}
		}()
		c.Next()
	}
}
