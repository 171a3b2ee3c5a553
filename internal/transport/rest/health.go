package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/heartmarshall/ledger-backend/internal/service/integrity"
)

// dbPinger defines the minimal interface for DB health checks.
type dbPinger interface {
	Ping(ctx context.Context) error
}

type integrityReporter interface {
	Healthy() bool
	Failures() map[string]integrity.Failure
	LastRun() time.Time
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db        dbPinger
	integrity integrityReporter
	version   string
}

// NewHealthHandler creates a HealthHandler. db may be nil when the service
// runs without persistence.
func NewHealthHandler(db dbPinger, integrity integrityReporter, version string) *HealthHandler {
	return &HealthHandler{db: db, integrity: integrity, version: version}
}

// HealthResponse is the JSON response for /health and /ready.
type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version,omitempty"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CompStatus is the status of an individual component.
type CompStatus struct {
	Status   string                       `json:"status"`
	Latency  string                       `json:"latency,omitempty"`
	LastRun  *time.Time                   `json:"lastRun,omitempty"`
	Failures map[string]integrity.Failure `json:"failures,omitempty"`
}

// Live is the liveness probe. Always returns 200.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready is the readiness probe: 503 if the DB is unreachable or a ledger
// failed verification.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	dbDown := h.db != nil && h.db.Ping(ctx) != nil
	if dbDown || !h.integrity.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "down",
			Timestamp: time.Now(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Health is the full health check: DB latency, the latched integrity
// failures and the version.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := make(map[string]CompStatus)
	overallStatus := "ok"

	if h.db != nil {
		start := time.Now()
		err := h.db.Ping(ctx)
		latency := time.Since(start)

		if err != nil {
			components["database"] = CompStatus{Status: "down"}
			overallStatus = "down"
		} else {
			components["database"] = CompStatus{
				Status:  "ok",
				Latency: latency.String(),
			}
		}
	}

	ledgers := CompStatus{Status: "ok"}
	if last := h.integrity.LastRun(); !last.IsZero() {
		ledgers.LastRun = &last
	}
	if !h.integrity.Healthy() {
		ledgers.Status = "down"
		ledgers.Failures = h.integrity.Failures()
		overallStatus = "down"
	}
	components["integrity"] = ledgers

	status := http.StatusOK
	if overallStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:     overallStatus,
		Version:    h.version,
		Components: components,
		Timestamp:  time.Now(),
	})
}
