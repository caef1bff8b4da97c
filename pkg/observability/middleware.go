package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ObservabilityMiddleware wraps every HTTP request with a trace span,
// structured request/completion logging, slow-request logging, metrics
// recording, and an audit-log entry for writes to a sensitive path.
type ObservabilityMiddleware struct {
	tracer         trace.Tracer
	metrics        *MetricsProvider
	logger         *Logger
	performanceLog *PerformanceLogger
	auditLog       *AuditLogger
	serviceName    string
	slowThreshold  time.Duration
}

// MiddlewareConfig contains configuration for observability middleware
type MiddlewareConfig struct {
	ServiceName    string
	ServiceVersion string
	SlowThreshold  time.Duration
	EnableTracing  bool
	EnableMetrics  bool
	EnableLogging  bool
	EnableSecurity bool
	EnableAudit    bool
}

// NewObservabilityMiddleware creates a new observability middleware
func NewObservabilityMiddleware(
	metrics *MetricsProvider,
	logger *Logger,
	config MiddlewareConfig,
) *ObservabilityMiddleware {
	tracer := otel.Tracer(config.ServiceName)

	slowThreshold := config.SlowThreshold
	if slowThreshold == 0 {
		slowThreshold = 1 * time.Second
	}

	return &ObservabilityMiddleware{
		tracer:         tracer,
		metrics:        metrics,
		logger:         logger,
		performanceLog: NewPerformanceLogger(logger),
		auditLog:       NewAuditLogger(logger),
		serviceName:    config.ServiceName,
		slowThreshold:  slowThreshold,
	}
}

// userIDContextKey is the context key getUserID reads. It is private to
// this package, and pkg/middleware (which already imports this package)
// stores its user ID under its own ContextKey("user_id"), so nothing sets
// this key and audit entries record the user as "anonymous".
type userIDContextKey struct{}

// HTTPMiddleware returns the observability middleware wired into the
// mux router: a trace span per request, request/completion logging,
// metrics recording, slow-request logging, and an audit entry for any
// successful write against a sensitive path.
func (om *ObservabilityMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		spanName := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		ctx, span := om.tracer.Start(ctx, spanName)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("http.user_agent", r.UserAgent()),
			attribute.String("http.remote_addr", r.RemoteAddr),
			attribute.String("request.id", requestID),
			attribute.String("service.name", om.serviceName),
		)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		r = r.WithContext(ctx)

		om.logger.Info(ctx, "HTTP request started", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"user_agent":  r.UserAgent(),
			"remote_addr": r.RemoteAddr,
			"request_id":  requestID,
		})

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		statusCode := rw.statusCode

		span.SetAttributes(
			attribute.Int("http.status_code", statusCode),
			attribute.Int64("http.response_size", int64(rw.size)),
			attribute.Float64("http.duration_ms", float64(duration.Nanoseconds())/1e6),
		)

		if statusCode >= 400 {
			span.SetAttributes(attribute.Bool("error", true))
			if statusCode >= 500 {
				span.RecordError(fmt.Errorf("HTTP %d", statusCode))
			}
		}

		if om.metrics != nil {
			om.metrics.RecordHTTPRequest(ctx, r.Method, r.URL.Path, strconv.Itoa(statusCode), duration)
		}

		logFields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
			"request_id":  requestID,
			"user_agent":  r.UserAgent(),
			"remote_addr": r.RemoteAddr,
		}

		if statusCode >= 400 {
			om.logger.Warn(ctx, "HTTP request completed with error", logFields)
		} else {
			om.logger.Info(ctx, "HTTP request completed", logFields)
		}

		if duration > om.slowThreshold {
			om.performanceLog.LogSlowOperation(ctx, spanName, duration, om.slowThreshold, logFields)
		}

		if r.Method != http.MethodGet && om.isSensitiveEndpoint(r.URL.Path) && statusCode < 400 {
			om.auditLog.LogUserAction(ctx, spanName, om.getUserID(ctx), om.extractResource(r.URL.Path), logFields)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(data)
	rw.size += size
	return size, err
}

// isSensitiveEndpoint flags the mutating resources an operator audit
// trail should cover: policy CRUD and position opens.
func (om *ObservabilityMiddleware) isSensitiveEndpoint(path string) bool {
	sensitivePaths := []string{"/policies", "/positions"}
	for _, sensitivePath := range sensitivePaths {
		if strings.HasPrefix(path, sensitivePath) {
			return true
		}
	}
	return false
}

func (om *ObservabilityMiddleware) getUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDContextKey{}).(string); ok {
		return userID
	}
	return "anonymous"
}

// extractResource derives the resource name from a path like
// "/positions/<id>" -> "positions".
func (om *ObservabilityMiddleware) extractResource(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "unknown"
	}
	return parts[0]
}
