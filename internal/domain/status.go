package domain

// DetermineDeploymentStatus is the pure function shared by the Reconciler's
// event watcher and the drift loop. It never performs I/O and never reads
// mutable state: identical inputs always yield identical outputs.
func DetermineDeploymentStatus(desired, ready, available, updated int32) DeploymentStatus {
	switch {
	case desired == 0:
		return StatusSuspended
	case ready == 0 && available == 0:
		return StatusStarting
	case ready == desired && available == desired && updated == desired:
		return StatusRunning
	case ready > 0 && ready < desired:
		return StatusDegraded
	case updated != desired:
		return StatusUpdating
	default:
		return StatusUnhealthy
	}
}

// CrashWaitingReasons are the container waiting reasons that force a
// deployment's status to Unhealthy, per the pod-level signal override.
var CrashWaitingReasons = map[string]bool{
	"CrashLoopBackOff": true,
	"ImagePullBackOff": true,
	"ErrImagePull":     true,
}

// ApplyPodSignal applies the pod-level override: if a crash-indicating
// waiting reason is present, the deployment is forced to Unhealthy unless it
// is already in one of the given terminal statuses.
func ApplyPodSignal(current DeploymentStatus, waitingReason string) DeploymentStatus {
	if !CrashWaitingReasons[waitingReason] {
		return current
	}
	if current == StatusFailed || current == StatusSuspended || current == StatusImagePullError {
		return current
	}
	return StatusUnhealthy
}
