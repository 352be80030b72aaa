package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetRegistry() {
	reg = &registry{
		subsystems: make(map[string]SubsystemStatus),
		startedAt:  time.Now(),
	}
}

func TestRegisterComponent(t *testing.T) {
	resetRegistry()

	RegisterComponent("scheduler", true, "running")

	if len(reg.subsystems) != 1 {
		t.Errorf("expected 1 subsystem, got %d", len(reg.subsystems))
	}

	s := reg.subsystems["scheduler"]
	if !s.Healthy {
		t.Error("subsystem should be healthy")
	}
	if s.Detail != "running" {
		t.Errorf("expected detail 'running', got '%s'", s.Detail)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetRegistry()
	reg.version = "1.0.0"

	RegisterComponent("core", true, "")
	RegisterComponent("scheduler", true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}
	if len(health.Subsystems) != 2 {
		t.Errorf("expected 2 subsystems, got %d", len(health.Subsystems))
	}
	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetRegistry()

	RegisterComponent("scheduler", true, "")
	RegisterComponent("core", false, "task graph corrupted")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
	if health.Subsystems["core"] != "unhealthy: task graph corrupted" {
		t.Errorf("unexpected core status: %s", health.Subsystems["core"])
	}
}

func TestGetReadiness_AllReady(t *testing.T) {
	resetRegistry()

	RegisterComponent("core", true, "")
	RegisterComponent("scheduler", true, "")
	RegisterComponent("autoalloc", true, "")

	readiness := GetReadiness()

	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_MissingRequiredSubsystem(t *testing.T) {
	resetRegistry()

	RegisterComponent("autoalloc", true, "")
	// core and scheduler not registered

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
	if readiness.Detail == "" {
		t.Error("expected detail explaining why not ready")
	}
}

func TestGetReadiness_RequiredSubsystemUnhealthy(t *testing.T) {
	resetRegistry()

	RegisterComponent("core", false, "task graph corrupted")
	RegisterComponent("scheduler", true, "")
	RegisterComponent("autoalloc", true, "")

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_AutoallocNeverGatesReadiness(t *testing.T) {
	resetRegistry()

	RegisterComponent("core", true, "")
	RegisterComponent("scheduler", true, "")
	// autoalloc never registered: no queues configured at startup

	readiness := GetReadiness()

	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready' with no autoalloc registered, got '%s'", readiness.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	resetRegistry()
	reg.version = "test"

	RegisterComponent("scheduler", true, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var report ServerReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", report.Status)
	}
	if report.Version != "test" {
		t.Errorf("expected version 'test', got %s", report.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetRegistry()

	RegisterComponent("scheduler", false, "stalled")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var report ServerReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %s", report.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	resetRegistry()

	RegisterComponent("core", true, "")
	RegisterComponent("scheduler", true, "")

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var report ServerReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.Status != "ready" {
		t.Errorf("expected ready status, got %s", report.Status)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetRegistry()

	RegisterComponent("scheduler", true, "")
	// core not registered

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var report ServerReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", report.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetRegistry()

	req := httptest.NewRequest("GET", "/live", nil)
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

func TestUpdateComponent(t *testing.T) {
	resetRegistry()

	RegisterComponent("scheduler", true, "ok")
	UpdateComponent("scheduler", false, "stalled")

	s := reg.subsystems["scheduler"]
	if s.Healthy {
		t.Error("subsystem should be unhealthy after update")
	}
	if s.Detail != "stalled" {
		t.Errorf("expected detail 'stalled', got '%s'", s.Detail)
	}
}
