package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps request IDs taken from headers before they reach
// trace attributes.
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification
	ServiceName string
	// Enabled controls whether tracing is active
	Enabled bool
}

// Tracing returns OpenTelemetry tracing middleware. It wraps otelgin and
// enriches the server span with request_id plus the authenticated user or
// family from the JWT claims. The span name follows the
// "METHOD route_pattern" format, e.g. "POST /api/v1/banking/connections".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	base := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		// otelgin drives the rest of the chain, so once it returns the JWT
		// middleware has populated the context keys
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpan(c, span)
		}
	}
}

// enrichSpan adds request and principal attributes to the server span
func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := tracedRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if userID := c.GetString(JWTUserIDKey); userID != "" {
		span.SetAttributes(attribute.String("user_id", userID))
	}
	if familyID := c.GetString(JWTFamilyIDKey); familyID != "" {
		span.SetAttributes(attribute.String("family_id", familyID))
	}
}

// tracedRequestID reads the request ID set by the RequestID middleware,
// falling back to the raw header with a length cap.
func tracedRequestID(c *gin.Context) string {
	if requestID := c.GetString(RequestIDHeader); requestID != "" {
		return requestID
	}
	headerID := c.GetHeader(RequestIDHeader)
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// SpanErrorMarker marks the server span with error status for 4xx/5xx
// responses. Must sit after Tracing in the middleware chain.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(statusCode))
			span.SetAttributes(attribute.Int("http.status_code", statusCode))
		}
	}
}
