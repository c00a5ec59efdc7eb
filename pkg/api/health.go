package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/metrics"
)

// StatusSource reports the state of every registered publisher
type StatusSource interface {
	Status() []events.PublisherStatus
}

// StoreChecker is the part of the event store the readiness check uses
type StoreChecker interface {
	Subscribers() ([]string, error)
}

// HealthServer provides HTTP health check endpoints
type HealthServer struct {
	source StatusSource
	store  StoreChecker
	mux    *http.ServeMux
	server *http.Server
}

// NewHealthServer creates a new health check HTTP server. Either
// dependency may be nil; readiness then reports it as not initialized.
func NewHealthServer(source StatusSource, store StoreChecker) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		source: source,
		store:  store,
		mux:    mux,
	}

	// Register endpoints
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/events", hs.eventsHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server. It blocks until the server
// stops and returns http.ErrServerClosed after Stop.
func (hs *HealthServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return hs.server.ListenAndServe()
}

// Stop shuts the HTTP server down, waiting up to timeout for requests
func (hs *HealthServer) Stop(timeout time.Duration) error {
	if hs.server == nil {
		return nil
	}
	ctx, cancel := contextWithTimeout(timeout)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint
// This is a liveness check; it returns 200 while the process is alive.
// Status is healthy, degraded or unhealthy from the component registry.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := metrics.GetHealth()
	response := HealthResponse{
		Status:     health.Status,
		Timestamp:  time.Now(),
		Version:    health.Version,
		Uptime:     health.Uptime,
		Components: health.Components,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler implements the /ready endpoint
// The agent is ready once every publisher loop runs, the store answers
// and every critical component reports healthy.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	notReady := func(msg string) {
		ready = false
		if message == "" {
			message = msg
		}
	}

	// Check 1: publisher loops
	if hs.source != nil {
		statuses := hs.source.Status()
		if len(statuses) == 0 {
			checks["events"] = "no publishers registered"
			notReady("No publishers registered")
		}
		for _, st := range statuses {
			key := "publisher:" + st.Name
			checks[key] = st.State
			if st.State != events.StateRunning.String() {
				notReady(fmt.Sprintf("Publisher %s is %s", st.Name, st.State))
			}
		}
	} else {
		checks["events"] = "not initialized"
		notReady("Event bus not initialized")
	}

	// Check 2: storage
	if hs.store != nil {
		if _, err := hs.store.Subscribers(); err != nil {
			checks["storage"] = fmt.Sprintf("error: %v", err)
			notReady("Storage not accessible")
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "not initialized"
		notReady("Storage not initialized")
	}

	// Check 3: critical components
	readiness := metrics.GetReadiness()
	for name, state := range readiness.Components {
		checks[name] = state
	}
	if readiness.Status != "ready" {
		notReady(readiness.Message)
	}

	// Prepare response
	status := "ready"
	statusCode := http.StatusOK

	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// eventsHandler implements the /events endpoint, one entry per publisher
func (hs *HealthServer) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := []events.PublisherStatus{}
	if hs.source != nil {
		statuses = hs.source.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(statuses)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
