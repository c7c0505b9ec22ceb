package reconciler

import (
	"github.com/google/uuid"

	"github.com/poddle/compute/internal/domain"
)

// ownerIDs extracts the project/deployment identity from a cluster object's
// labels. ok is false when either platform label is absent or malformed —
// defence against a misconfigured watch (objects this process does not own).
func ownerIDs(labels map[string]string) (projectID, deploymentID uuid.UUID, ok bool) {
	if labels == nil {
		return uuid.Nil, uuid.Nil, false
	}
	pid, err := uuid.Parse(labels[domain.LabelProjectID])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	did, err := uuid.Parse(labels[domain.LabelDeploymentID])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return pid, did, true
}
