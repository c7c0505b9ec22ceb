package domain

import (
	"strings"

	"github.com/google/uuid"
)

// first8Hex returns the first 8 characters of the UUID's hex representation
// (no dashes), matching the platform-wide naming invariant.
func first8Hex(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	if len(hex) < 8 {
		return hex
	}
	return hex[:8]
}

// Namespace returns the deterministic namespace a user's workloads live in.
func Namespace(userID uuid.UUID) string {
	return "user-" + first8Hex(userID)
}

// ResourceName returns the deterministic cluster object name for a
// deployment: every workload, service, route, and secret it owns shares
// this name.
func ResourceName(deploymentID uuid.UUID) string {
	return "app-" + first8Hex(deploymentID)
}

// SecretStorePath returns the path a deployment's secrets are written to in
// the external secret store.
func SecretStorePath(userID, deploymentID uuid.UUID) string {
	return Namespace(userID) + "/" + deploymentID.String()
}

// Label keys every cluster object this platform owns must carry.
const (
	LabelManagedBy    = "managed-by"
	LabelProjectID    = "project-id"
	LabelDeploymentID = "deployment-id"

	ManagedByValue = "poddle"
)

// OwnershipLabels returns the full label set a newly created cluster object
// must carry.
func OwnershipLabels(projectID, deploymentID uuid.UUID) map[string]string {
	return map[string]string{
		LabelManagedBy:    ManagedByValue,
		LabelProjectID:    projectID.String(),
		LabelDeploymentID: deploymentID.String(),
	}
}
