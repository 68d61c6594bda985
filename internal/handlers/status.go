package handlers

import (
	"net/http"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/reminders"
	"github.com/gorilla/mux"
)

// StatusSource exposes the scheduler state shown by the status endpoint
type StatusSource interface {
	Cadences() []reminders.Cadence
	LastResults() map[string]reminders.RunResult
	NextRuns(from time.Time) []reminders.ScheduledRun
}

var _ StatusSource = (*reminders.Scheduler)(nil)

// StatusHandler reports the last run and next occurrence of each cadence
type StatusHandler struct {
	source StatusSource
	now    func() time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source, now: time.Now}
}

// CadenceStatus is the status of one cadence
type CadenceStatus struct {
	Name      string               `json:"name"`
	Schedule  string               `json:"schedule"`
	NextRun   *time.Time           `json:"next_run,omitempty"`
	Status    string               `json:"status,omitempty"`
	LastRun   *reminders.RunResult `json:"last_run,omitempty"`
	LastError string               `json:"last_error,omitempty"`
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/status", h.ListCadences).Methods("GET")
	r.HandleFunc("/status/{cadence}", h.GetCadence).Methods("GET")
}

// ListCadences handles GET /status
func (h *StatusHandler) ListCadences(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.collect(""))
}

// GetCadence handles GET /status/{cadence}
func (h *StatusHandler) GetCadence(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["cadence"]
	statuses := h.collect(name)
	if len(statuses) == 0 {
		respondJSONError(w, http.StatusNotFound, "Not Found", "unknown cadence: "+name)
		return
	}
	respondJSON(w, http.StatusOK, statuses[0])
}

func (h *StatusHandler) collect(only string) []CadenceStatus {
	last := h.source.LastResults()
	next := make(map[string]time.Time)
	for _, run := range h.source.NextRuns(h.now()) {
		next[run.Cadence] = run.At
	}

	var out []CadenceStatus
	for _, c := range h.source.Cadences() {
		if only != "" && c.Name != only {
			continue
		}
		status := CadenceStatus{Name: c.Name, Schedule: c.String()}
		if at, ok := next[c.Name]; ok {
			at := at
			status.NextRun = &at
		}
		if result, ok := last[c.Name]; ok {
			result := result
			status.LastRun = &result
			status.Status = string(result.Status())
			if result.Err != nil {
				status.LastError = sanitizeErrorMessage(result.Err.Error())
			}
		}
		out = append(out, status)
	}
	return out
}
