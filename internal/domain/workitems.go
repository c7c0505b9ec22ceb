package domain

import "github.com/google/uuid"

// CreateWorkItem is the payload of a message on the compute.create queue.
type CreateWorkItem struct {
	UserID          uuid.UUID         `json:"userId"`
	ProjectID       uuid.UUID         `json:"projectId"`
	DeploymentID    uuid.UUID         `json:"deploymentId"`
	Name            string            `json:"name"`
	Image           string            `json:"image"`
	Port            int32             `json:"port"`
	DesiredReplicas int32             `json:"desiredReplicas"`
	ResourceSpec    ResourceSpec      `json:"resourceSpec"`
	EnvironmentVars map[string]string `json:"environmentVariables,omitempty"`
	Secrets         map[string]string `json:"secrets,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	Subdomain       string            `json:"subdomain,omitempty"`
}

// UpdateWorkItem is the payload of a message on the compute.update queue.
// Every field but the identifiers and Timestamp is optional; only present
// fields are patched.
type UpdateWorkItem struct {
	UserID          uuid.UUID         `json:"userId"`
	ProjectID       uuid.UUID         `json:"projectId"`
	DeploymentID    uuid.UUID         `json:"deploymentId"`
	Name            *string           `json:"name,omitempty"`
	Image           *string           `json:"image,omitempty"`
	Port            *int32            `json:"port,omitempty"`
	DesiredReplicas *int32            `json:"desiredReplicas,omitempty"`
	ResourceSpec    *ResourceSpec     `json:"resourceSpec,omitempty"`
	EnvironmentVars map[string]string `json:"environmentVariables,omitempty"`
	Secrets         map[string]string `json:"secrets,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
	Domain          *string           `json:"domain,omitempty"`
	Subdomain       *string           `json:"subdomain,omitempty"`
	// Timestamp is advisory only; see the design note on ordering in
	// SPEC_FULL.md. It is not used for reordering.
	Timestamp int64 `json:"timestamp"`
}

// DeleteWorkItem is the payload of a message on the compute.delete queue.
type DeleteWorkItem struct {
	UserID       uuid.UUID `json:"userId"`
	ProjectID    uuid.UUID `json:"projectId"`
	DeploymentID uuid.UUID `json:"deploymentId"`
	Timestamp    int64     `json:"timestamp"`
}
