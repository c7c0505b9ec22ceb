package cache

import "github.com/google/uuid"

// Key layout, per spec.md §4.1. All keys are hierarchical strings.

func deploymentMetricsKey(id uuid.UUID) string {
	return "deployment:" + id.String() + ":metrics"
}

func deploymentPodsKey(id uuid.UUID) string {
	return "deployment:" + id.String() + ":pods"
}

func podMetaKey(id uuid.UUID, uid string) string {
	return "deployment:" + id.String() + ":pod:" + uid + ":meta"
}

func podMetricsKey(id uuid.UUID, uid string) string {
	return "deployment:" + id.String() + ":pod:" + uid + ":metrics"
}

// ProjectChannel is the pub/sub channel carrying aggregated deployment
// metric updates and status updates for a project.
func ProjectChannel(projectID uuid.UUID) string {
	return "project:" + projectID.String() + ":metrics"
}

// DeploymentChannel is the pub/sub channel carrying per-pod metric updates
// for a deployment.
func DeploymentChannel(deploymentID uuid.UUID) string {
	return "deployment:" + deploymentID.String() + ":metrics"
}
