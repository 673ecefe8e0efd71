package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "prism-board/api"

// RequestTelemetry wraps every request in a span and logs its outcome.
func RequestTelemetry(logger *log.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			route := c.Path()
			ctx, span := otel.Tracer(tracerName).Start(req.Context(), req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			fields := log.Fields{
				"method":   req.Method,
				"route":    route,
				"status":   status,
				"total_ms": durationToMillis(time.Since(start)),
			}
			if user, ok := c.Get(userKey).(string); ok && user != "" {
				fields["user"] = user
				span.SetAttributes(attribute.String("prism.user.id", user))
			}
			entry := logger.WithFields(fields)
			switch {
			case status >= 500:
				span.SetStatus(codes.Error, http.StatusText(status))
				entry.Warn("request completed")
			case status >= 400:
				span.SetStatus(codes.Unset, "")
				entry.Info("request completed")
			default:
				span.SetStatus(codes.Ok, "")
				entry.Debug("request completed")
			}
			return nil
		}
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
