package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/shardha/internal/persist"
	"github.com/cuemby/shardha/pkg/dashboard"
)

func resetHealthChecker() {
	healthChecker = &HealthChecker{startTime: time.Now()}
}

func openTestPersistStore(t *testing.T) *persist.Store {
	t.Helper()
	s, err := persist.Open(filepath.Join(t.TempDir(), "dashboards.db"))
	if err != nil {
		t.Fatalf("open persist store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRegisterDispatcherHealthy(t *testing.T) {
	resetHealthChecker()
	RegisterDispatcher(dashboard.NewStorage())

	health := GetHealth()
	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}
	if health.Components["dispatcher"] == "" {
		t.Error("expected a dispatcher component entry")
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "1.0.0"

	RegisterDispatcher(dashboard.NewStorage())
	RegisterPersistence(nil, false)

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}
	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}
	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_NoDispatcherRegistered(t *testing.T) {
	resetHealthChecker()
	RegisterPersistence(nil, false)

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
	if health.Components["dispatcher"] != "unhealthy: no dashboard storage registered" {
		t.Errorf("unexpected dispatcher status: %s", health.Components["dispatcher"])
	}
}

func TestGetHealth_PersistenceConfiguredButStoreNotOpen(t *testing.T) {
	resetHealthChecker()
	RegisterDispatcher(dashboard.NewStorage())
	RegisterPersistence(nil, true)

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
	if health.Components["storage"] != "unhealthy: persistence configured but store not open" {
		t.Errorf("unexpected storage status: %s", health.Components["storage"])
	}
}

func TestGetHealth_PersistenceStoreClosed(t *testing.T) {
	resetHealthChecker()
	store := openTestPersistStore(t)
	RegisterDispatcher(dashboard.NewStorage())
	RegisterPersistence(store, true)
	_ = store.Close()

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
}

func TestGetReadiness_AllReady(t *testing.T) {
	resetHealthChecker()
	store := openTestPersistStore(t)
	RegisterDispatcher(dashboard.NewStorage())
	RegisterPersistence(store, true)

	readiness := GetReadiness()

	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_NoDispatcherRegistered(t *testing.T) {
	resetHealthChecker()
	RegisterPersistence(nil, false)

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
	if readiness.Message == "" {
		t.Error("expected message explaining why not ready")
	}
}

func TestGetReadiness_PersistenceWantedButUnreachable(t *testing.T) {
	resetHealthChecker()
	RegisterDispatcher(dashboard.NewStorage())
	RegisterPersistence(nil, true)

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "test"
	RegisterDispatcher(dashboard.NewStorage())
	RegisterPersistence(nil, false)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealthChecker()
	// no dispatcher registered

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %s", health.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	resetHealthChecker()
	RegisterDispatcher(dashboard.NewStorage())
	RegisterPersistence(nil, false)

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "ready" {
		t.Errorf("expected ready status, got %s", readiness.Status)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealthChecker()
	// dispatcher not registered

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest("GET", "/livez", nil)
	w := httptest.NewRecorder()

	handler := LivenessHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}
	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}
