package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each dependency check
const healthCheckTimeout = 2 * time.Second

// DependencyChecker reports whether one dependency is reachable
type DependencyChecker interface {
	Health(ctx context.Context) error
}

// CheckFunc adapts a ping function to DependencyChecker
type CheckFunc func(ctx context.Context) error

// Health calls f
func (f CheckFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// stateReporter is implemented by checkers with a state worth showing, such
// as a circuit breaker
type stateReporter interface {
	State() string
}

// DependencyStatus is one dependency in the health report
type DependencyStatus struct {
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HealthReport is the body of GET /health
type HealthReport struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// HealthHandler serves GET /health. The process stays available while a
// dependency is down, so the status code is always 200 and the report says
// "degraded" instead.
type HealthHandler struct {
	checks map[string]DependencyChecker
}

// NewHealthHandler creates a health handler with no dependencies
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: make(map[string]DependencyChecker)}
}

// Register adds a named dependency to the report
func (h *HealthHandler) Register(name string, checker DependencyChecker) {
	h.checks[name] = checker
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{Status: "ok"}
	if len(h.checks) > 0 {
		report.Dependencies = make(map[string]DependencyStatus, len(h.checks))
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checker := h.checks[name]
		status := DependencyStatus{Status: "ok"}
		if sr, ok := checker.(stateReporter); ok {
			status.State = sr.State()
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.Health(ctx)
		cancel()
		if err != nil {
			status.Status = "down"
			status.Error = err.Error()
			report.Status = "degraded"
		}
		report.Dependencies[name] = status
	}

	respondWithJSON(w, http.StatusOK, report)
}
