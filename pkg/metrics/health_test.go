package metrics

import (
	"testing"
)

func resetHealthChecker(version string, critical ...string) {
	healthChecker = newRegistry()
	healthChecker.version = version
	SetCriticalComponents(critical...)
}

func TestRegisterComponent(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("inotify", true, "running")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components["inotify"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}
	if comp.Message != "running" {
		t.Errorf("expected message 'running', got '%s'", comp.Message)
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		critical   []string
		components map[string]bool
		want       string
	}{
		{
			name: "empty registry",
			want: StatusHealthy,
		},
		{
			name:       "all healthy",
			critical:   []string{"audit"},
			components: map[string]bool{"audit": true, "inotify_watches": true},
			want:       StatusHealthy,
		},
		{
			name:       "non-critical unhealthy",
			critical:   []string{"audit"},
			components: map[string]bool{"audit": true, "inotify_watches": false},
			want:       StatusDegraded,
		},
		{
			name:       "critical unhealthy",
			critical:   []string{"audit"},
			components: map[string]bool{"audit": false, "inotify_watches": false},
			want:       StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealthChecker("1.0.0", tt.critical...)
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "status")
			}

			health := GetHealth()
			if health.Status != tt.want {
				t.Errorf("expected status %q, got %q", tt.want, health.Status)
			}
			if len(health.Components) != len(tt.components) {
				t.Errorf("expected %d components, got %d", len(tt.components), len(health.Components))
			}
			if health.Version != "1.0.0" {
				t.Errorf("expected version '1.0.0', got '%s'", health.Version)
			}
		})
	}
}

func TestGetHealth_UnhealthyMessage(t *testing.T) {
	resetHealthChecker("", "audit")

	RegisterComponent("audit", false, "set up failed")

	health := GetHealth()
	if health.Components["audit"] != "unhealthy: set up failed" {
		t.Errorf("unexpected audit status: %s", health.Components["audit"])
	}
	if health.Message != "audit: set up failed" {
		t.Errorf("unexpected message: %s", health.Message)
	}
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		want       string
		wantAudit  string
	}{
		{
			name:       "all ready",
			components: map[string]bool{"audit": true, "inotify": true},
			want:       "ready",
			wantAudit:  "ready",
		},
		{
			name:       "missing critical component",
			components: map[string]bool{"inotify": true},
			want:       "not_ready",
			wantAudit:  "not registered",
		},
		{
			name:       "critical component unhealthy",
			components: map[string]bool{"audit": false, "inotify": true},
			want:       "not_ready",
			wantAudit:  "not ready: status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealthChecker("", "audit", "inotify")
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "status")
			}

			readiness := GetReadiness()
			if readiness.Status != tt.want {
				t.Errorf("expected status %q, got %q", tt.want, readiness.Status)
			}
			if readiness.Components["audit"] != tt.wantAudit {
				t.Errorf("expected audit %q, got %q", tt.wantAudit, readiness.Components["audit"])
			}
			if tt.want != "ready" && readiness.Message != "waiting for audit" {
				t.Errorf("unexpected message: %s", readiness.Message)
			}
		})
	}
}

func TestGetReadiness_IgnoresNonCritical(t *testing.T) {
	resetHealthChecker("", "audit")

	RegisterComponent("audit", true, "running")
	RegisterComponent("inotify_watches", false, "0 watches")

	if got := GetReadiness().Status; got != "ready" {
		t.Errorf("expected ready, got %s", got)
	}
}

func TestUpdateComponent(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("test", true, "initial")
	UpdateComponent("test", false, "updated")

	comp := healthChecker.components["test"]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}
	if comp.Message != "updated" {
		t.Errorf("expected message 'updated', got '%s'", comp.Message)
	}
}

func TestSetCriticalComponents(t *testing.T) {
	resetHealthChecker("", "a", "b")

	SetCriticalComponents("c")

	if len(healthChecker.critical) != 1 || !healthChecker.critical["c"] {
		t.Errorf("expected only c to be critical, got %v", healthChecker.critical)
	}
}

func TestComponents(t *testing.T) {
	resetHealthChecker("", "inotify")

	RegisterComponent("inotify", true, "running")
	RegisterComponent("audit", false, "disabled")

	comps := Components()
	if len(comps) != 2 {
		t.Fatalf("expected 2 components, got %d", len(comps))
	}
	if comps[0].Name != "audit" || comps[1].Name != "inotify" {
		t.Errorf("components not sorted: %s, %s", comps[0].Name, comps[1].Name)
	}
	if comps[0].Critical || !comps[1].Critical {
		t.Error("critical flag not applied")
	}
}
