package handlers

import (
	"net/http"

	"github.com/benvon/smart-todo-reminders/internal/middleware"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// RouterOptions configures the operational HTTP router
type RouterOptions struct {
	// ServiceName enables otelmux tracing when non-empty
	ServiceName string
}

// NewRouter builds the router serving /healthz and, when status is non-nil, /status
func NewRouter(health *HealthChecker, status *StatusHandler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	if opts.ServiceName != "" {
		r.Use(otelmux.Middleware(opts.ServiceName))
	}
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Logging(logger))

	r.HandleFunc("/healthz", health.HealthCheck).Methods("GET")
	if status != nil {
		status.RegisterRoutes(r)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})

	return r
}
