package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// subsystemsRequiredForReadiness are the components hq server cannot serve
// a TaskGraph/AutoAlloc request without. AutoAlloc is not in the list, and
// hq server does not register it as a component.
var subsystemsRequiredForReadiness = []string{"core", "scheduler"}

// SubsystemStatus is the last health report a subsystem (core, scheduler,
// autoalloc, ...) filed for itself via RegisterComponent.
type SubsystemStatus struct {
	Healthy bool
	Detail  string
	AsOf    time.Time
}

// ServerReport is the JSON body served at /health and /ready.
type ServerReport struct {
	Status     string            `json:"status"` // "healthy"/"unhealthy", or "ready"/"not_ready"
	CheckedAt  time.Time         `json:"checkedAt"`
	Subsystems map[string]string `json:"subsystems,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type registry struct {
	mu         sync.RWMutex
	subsystems map[string]SubsystemStatus
	startedAt  time.Time
	version    string
}

var reg = &registry{
	subsystems: make(map[string]SubsystemStatus),
	startedAt:  time.Now(),
}

// SetVersion records the build version reported by /health and /ready.
func SetVersion(version string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.version = version
}

// RegisterComponent files the current health of a named subsystem. Called
// once at startup and again whenever a subsystem's health changes.
func RegisterComponent(name string, healthy bool, detail string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.subsystems[name] = SubsystemStatus{Healthy: healthy, Detail: detail, AsOf: time.Now()}
}

// UpdateComponent refiles a subsystem's health; it is the same write as
// RegisterComponent, kept as a separate name for call sites that are
// reporting a change rather than an initial registration.
func UpdateComponent(name string, healthy bool, detail string) {
	RegisterComponent(name, healthy, detail)
}

// GetHealth rolls up every registered subsystem: unhealthy if any one of
// them is, whether or not that subsystem is required for readiness.
func GetHealth() ServerReport {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	status := "healthy"
	subsystems := make(map[string]string, len(reg.subsystems))
	for name, s := range reg.subsystems {
		if s.Healthy {
			subsystems[name] = "healthy"
			continue
		}
		status = "unhealthy"
		subsystems[name] = "unhealthy: " + s.Detail
	}

	return ServerReport{
		Status:     status,
		CheckedAt:  time.Now(),
		Subsystems: subsystems,
		Version:    reg.version,
		Uptime:     time.Since(reg.startedAt).String(),
	}
}

// GetReadiness reports whether hq server can currently accept submissions:
// every name in subsystemsRequiredForReadiness must be both registered and
// healthy.
func GetReadiness() ServerReport {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	status := "ready"
	detail := ""
	subsystems := make(map[string]string, len(subsystemsRequiredForReadiness))

	for _, name := range subsystemsRequiredForReadiness {
		s, registered := reg.subsystems[name]
		switch {
		case !registered:
			status = "not_ready"
			detail = "waiting for " + name + " to start"
			subsystems[name] = "not registered"
		case !s.Healthy:
			status = "not_ready"
			detail = "waiting for " + name
			subsystems[name] = "unhealthy: " + s.Detail
		default:
			subsystems[name] = "ready"
		}
	}

	return ServerReport{
		Status:     status,
		CheckedAt:  time.Now(),
		Subsystems: subsystems,
		Detail:     detail,
		Version:    reg.version,
		Uptime:     time.Since(reg.startedAt).String(),
	}
}

// HealthHandler serves GET /health: 200 unless a registered subsystem is
// unhealthy, in which case 503.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetHealth()
		writeReport(w, report, report.Status == "unhealthy")
	}
}

// ReadyHandler serves GET /ready: 200 once every required subsystem is
// registered and healthy, 503 until then.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetReadiness()
		writeReport(w, report, report.Status != "ready")
	}
}

// LivenessHandler serves GET /live: 200 as long as the process can handle
// an HTTP request at all, independent of any subsystem's health.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(reg.startedAt).String(),
		})
	}
}

func writeReport(w http.ResponseWriter, report ServerReport, unavailable bool) {
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if unavailable {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
