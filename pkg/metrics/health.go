package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/shardha/internal/persist"
	"github.com/cuemby/shardha/pkg/dashboard"
)

// HealthStatus is the JSON body served by /healthz and /readyz.
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

var healthChecker = &HealthChecker{startTime: time.Now()}

// HealthChecker derives this process's health directly from the domain
// objects it actually owns — the in-memory dashboard.Storage intern table
// and, when persistence is configured, the on-disk persist.Store — rather
// than from a caller-asserted name/healthy/message registry. A dispatcher
// or persistence layer that is merely present but not reachable (a nil
// Storage, a Store whose bbolt file stopped answering transactions) shows
// up as unhealthy without any call site having to assert that by hand.
type HealthChecker struct {
	mu        sync.RWMutex
	startTime time.Time
	version   string

	storage *dashboard.Storage

	persistWant bool // true once persist.enabled is set in the active config
	store       *persist.Store
}

// SetVersion sets the version string for health responses.
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterDispatcher wires the dashboard intern table this process is
// exporting metrics for. Pass nil to mark no dispatcher as attached (the
// "dispatcher" component then reports unhealthy).
func RegisterDispatcher(storage *dashboard.Storage) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.storage = storage
}

// RegisterPersistence wires the optional snapshot store. wanted records
// whether persist.enabled is set in the active config at all: when it
// isn't, the "storage" component reports healthy regardless of store being
// nil, since no persistence was ever supposed to be open. When wanted is
// true but store is nil (it failed to open) or store.Ping fails, the
// component reports unhealthy.
func RegisterPersistence(store *persist.Store, wanted bool) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.store = store
	healthChecker.persistWant = wanted
}

func (h *HealthChecker) dispatcherStatus() (healthy bool, detail string) {
	if h.storage == nil {
		return false, "no dashboard storage registered"
	}
	return true, fmt.Sprintf("tracking %d mirrors", h.storage.Len())
}

func (h *HealthChecker) storageStatus() (healthy bool, detail string) {
	if !h.persistWant {
		return true, "persistence disabled"
	}
	if h.store == nil {
		return false, "persistence configured but store not open"
	}
	if err := h.store.Ping(); err != nil {
		return false, "snapshot store unreachable: " + err.Error()
	}
	return true, "snapshot store open"
}

// GetHealth returns the overall health status.
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)

	if ok, detail := healthChecker.dispatcherStatus(); ok {
		components["dispatcher"] = "healthy: " + detail
	} else {
		status = "unhealthy"
		components["dispatcher"] = "unhealthy: " + detail
	}

	if ok, detail := healthChecker.storageStatus(); ok {
		components["storage"] = "healthy: " + detail
	} else {
		status = "unhealthy"
		components["storage"] = "unhealthy: " + detail
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
		StartTime:  healthChecker.startTime,
	}
}

// GetReadiness returns readiness status: the same two components as
// GetHealth, labeled ready/not_ready instead of healthy/unhealthy.
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)

	if ok, detail := healthChecker.dispatcherStatus(); ok {
		components["dispatcher"] = "ready"
	} else {
		status = "not_ready"
		message = "waiting for dispatcher: " + detail
		components["dispatcher"] = "not ready: " + detail
	}

	if ok, detail := healthChecker.storageStatus(); ok {
		components["storage"] = "ready"
	} else {
		status = "not_ready"
		message = "waiting for storage: " + detail
		components["storage"] = "not ready: " + detail
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
		StartTime:  healthChecker.startTime,
	}
}

// HealthHandler returns an HTTP handler for the /healthz endpoint.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler returns an HTTP handler for the /readyz endpoint.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler returns a simple liveness check (always 200 if the
// process can serve HTTP at all).
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
