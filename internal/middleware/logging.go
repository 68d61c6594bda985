package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/benvon/smart-todo-reminders/internal/logger"
	"github.com/benvon/smart-todo-reminders/internal/request"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// probePath is polled by orchestrator liveness checks
const probePath = "/healthz"

// Logging writes one http_request entry per request. Successful probe requests
// log at debug; server errors log at warn.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			level := zapcore.InfoLevel
			switch {
			case rec.statusCode >= http.StatusInternalServerError:
				level = zapcore.WarnLevel
			case r.URL.Path == probePath:
				level = zapcore.DebugLevel
			}

			if ce := logger.Check(level, "http_request"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.Int("status_code", rec.statusCode),
					zap.Int64("duration_ms", time.Since(start).Milliseconds()),
					zap.String("client_ip", request.ClientIP(r)),
				)
			}
		})
	}
}
