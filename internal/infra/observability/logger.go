package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a structured zap logger.
// debug → colorized console; any other valid level → JSON at that level;
// unknown levels fall back to info.
func NewLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch lvl, err := zapcore.ParseLevel(level); {
	case err != nil:
	case lvl == zapcore.DebugLevel:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}

// routeParams are the chi URL params copied onto request logs.
var routeParams = [][2]string{
	{"sessionId", "session_id"},
	{"sellerId", "seller_id"},
	{"transactionId", "transaction_id"},
}

// PayoutAction names the console action behind a route pattern, or "" for
// routes that do not act on a session.
func PayoutAction(method, pattern string) string {
	pattern = strings.TrimSuffix(pattern, "/")
	last := pattern[strings.LastIndex(pattern, "/")+1:]
	switch {
	case strings.HasSuffix(pattern, "/pay-now"):
		return "pay-now"
	case strings.HasSuffix(pattern, "/schedules"):
		return "create-schedule"
	case strings.HasSuffix(pattern, "/transactions/{transactionId}/toggle"):
		return "toggle-transaction"
	case strings.HasSuffix(pattern, "/toggle"):
		return "toggle-seller"
	case last == "refresh", last == "select-all", last == "deselect-all":
		return last
	case last == "form":
		return "set-form"
	case last == "sessions" && method == http.MethodPost:
		return "open-session"
	case last == "{sessionId}" && method == http.MethodDelete:
		return "close-session"
	case last == "{sessionId}":
		return "view-session"
	}
	return ""
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// RequestLogger logs one line per request with the payout route context.
// Probe routes log at Debug; 5xx at Error; 409 (concurrent or inconsistent
// payout state) and other 4xx at Warn.
func RequestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				pattern := routePattern(r)
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("route", pattern),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if action := PayoutAction(r.Method, pattern); action != "" {
					fields = append(fields, zap.String("action", action))
				}
				for _, p := range routeParams {
					if v := chi.URLParam(r, p[0]); v != "" {
						fields = append(fields, zap.String(p[1], v))
					}
				}

				switch {
				case status >= 500:
					logger.Error("payout console request", fields...)
				case status >= 400:
					logger.Warn("payout console request", fields...)
				case !strings.HasPrefix(pattern, "/v1/"):
					logger.Debug("payout console request", fields...)
				default:
					logger.Info("payout console request", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TracingMiddleware continues the caller's trace and wraps the request in
// a server span named after the matched route.
func TracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		pattern := routePattern(r)
		if pattern != "" {
			span.SetName(r.Method + " " + pattern)
		}
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", pattern),
			attribute.Int("http.response.status_code", ww.Status()),
		)
		if action := PayoutAction(r.Method, pattern); action != "" {
			span.SetAttributes(attribute.String("payout.action", action))
		}
		if ww.Status() >= 500 {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}
