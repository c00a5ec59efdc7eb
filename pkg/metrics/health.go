package metrics

import (
	"sort"
	"sync"
	"time"
)

// Health states reported by GetHealth
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is a point-in-time view of the component registry
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last report of one component
type ComponentHealth struct {
	Name     string    `json:"name"`
	Healthy  bool      `json:"healthy"`
	Critical bool      `json:"critical"`
	Message  string    `json:"message,omitempty"`
	Updated  time.Time `json:"updated"`
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   map[string]bool
	startTime  time.Time
	version    string
}

var healthChecker = newRegistry()

func newRegistry() *registry {
	return &registry{
		components: make(map[string]ComponentHealth),
		critical:   make(map[string]bool),
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetCriticalComponents replaces the set of components that must report
// healthy before the agent is ready. An unhealthy critical component makes
// the agent unhealthy; any other unhealthy component only degrades it.
func SetCriticalComponents(names ...string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.critical = make(map[string]bool, len(names))
	for _, name := range names {
		healthChecker.critical[name] = true
	}
}

// RegisterComponent records the state of a component, creating it on
// first use
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent records a new state for a component
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// Components returns every registered component sorted by name
func Components() []ComponentHealth {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	out := make([]ComponentHealth, 0, len(healthChecker.components))
	for name, comp := range healthChecker.components {
		comp.Critical = healthChecker.critical[name]
		out = append(out, comp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetHealth summarizes every registered component
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusHealthy
	var message string
	components := make(map[string]string, len(healthChecker.components))

	for name, comp := range healthChecker.components {
		if comp.Healthy {
			components[name] = StatusHealthy
			continue
		}
		components[name] = "unhealthy: " + comp.Message
		if healthChecker.critical[name] {
			status = StatusUnhealthy
			message = name + ": " + comp.Message
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

// GetReadiness reports ready once every critical component has registered
// and is healthy
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	names := make([]string, 0, len(healthChecker.critical))
	for name := range healthChecker.critical {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ready"
	var message string
	components := make(map[string]string, len(names))

	for _, name := range names {
		comp, ok := healthChecker.components[name]
		switch {
		case !ok:
			components[name] = "not registered"
		case !comp.Healthy:
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = "ready"
			continue
		}
		if status == "ready" {
			status = "not_ready"
			message = "waiting for " + name
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}
