package domain

import "testing"

func TestDetermineDeploymentStatus(t *testing.T) {
	cases := []struct {
		name                                 string
		desired, ready, available, updated int32
		want                                 DeploymentStatus
	}{
		{"suspended when desired zero", 0, 0, 0, 0, StatusSuspended},
		{"starting when nothing ready", 3, 0, 0, 0, StatusStarting},
		{"running when fully rolled out", 3, 3, 3, 3, StatusRunning},
		{"degraded when partially ready", 3, 1, 1, 3, StatusDegraded},
		{"updating when rollout in progress", 3, 3, 3, 2, StatusUpdating},
		{"unhealthy fallback", 3, 3, 0, 3, StatusUnhealthy},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DetermineDeploymentStatus(c.desired, c.ready, c.available, c.updated)
			if got != c.want {
				t.Errorf("DetermineDeploymentStatus(%d,%d,%d,%d) = %s, want %s",
					c.desired, c.ready, c.available, c.updated, got, c.want)
			}
		})
	}
}

func TestDetermineDeploymentStatusIsPure(t *testing.T) {
	a := DetermineDeploymentStatus(5, 2, 2, 5)
	b := DetermineDeploymentStatus(5, 2, 2, 5)
	if a != b {
		t.Fatalf("expected identical inputs to yield identical outputs, got %s and %s", a, b)
	}
}

func TestApplyPodSignal(t *testing.T) {
	if got := ApplyPodSignal(StatusRunning, "CrashLoopBackOff"); got != StatusUnhealthy {
		t.Errorf("expected crash loop to force Unhealthy, got %s", got)
	}
	if got := ApplyPodSignal(StatusFailed, "CrashLoopBackOff"); got != StatusFailed {
		t.Errorf("expected terminal status to be left alone, got %s", got)
	}
	if got := ApplyPodSignal(StatusRunning, ""); got != StatusRunning {
		t.Errorf("expected non-crash reason to be a no-op, got %s", got)
	}
}
