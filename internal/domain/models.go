// Package domain holds the entities, value types, and pure functions shared
// by every component of the compute plane. Nothing in this package performs
// I/O.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeploymentStatus is the full, persisted status domain. It is a superset of
// the values the pure status derivation can produce.
type DeploymentStatus string

const (
	StatusBuilding       DeploymentStatus = "building"
	StatusQueued         DeploymentStatus = "queued"
	StatusProvisioning   DeploymentStatus = "provisioning"
	StatusStarting       DeploymentStatus = "starting"
	StatusRunning        DeploymentStatus = "running"
	StatusUnhealthy      DeploymentStatus = "unhealthy"
	StatusDegraded       DeploymentStatus = "degraded"
	StatusUpdating       DeploymentStatus = "updating"
	StatusSuspended      DeploymentStatus = "suspended"
	StatusFailed         DeploymentStatus = "failed"
	StatusBuildFailed    DeploymentStatus = "build_failed"
	StatusDeleted        DeploymentStatus = "deleted"
	StatusImagePullError DeploymentStatus = "image_pull_error"
)

// Terminal is the set of statuses the drift loop and reconciler treat as
// final: once reached, no automatic process moves a deployment out of it.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case StatusFailed, StatusSuspended, StatusImagePullError:
		return true
	default:
		return false
	}
}

// PodPhase mirrors the Kubernetes pod lifecycle phase.
type PodPhase string

const (
	PodPending   PodPhase = "Pending"
	PodRunning   PodPhase = "Running"
	PodSucceeded PodPhase = "Succeeded"
	PodFailed    PodPhase = "Failed"
	PodUnknown   PodPhase = "Unknown"
)

// ResourceSpec is the cpu/memory request and limit a workload is created
// with. Defaults match the platform's baseline tier.
type ResourceSpec struct {
	CPURequestMillicores int32 `json:"cpuRequestMillicores"`
	CPULimitMillicores   int32 `json:"cpuLimitMillicores"`
	MemoryRequestMB      int32 `json:"memoryRequestMb"`
	MemoryLimitMB        int32 `json:"memoryLimitMb"`
}

// DefaultResourceSpec is used whenever a caller does not supply one.
func DefaultResourceSpec() ResourceSpec {
	return ResourceSpec{
		CPURequestMillicores: 250,
		CPULimitMillicores:   500,
		MemoryRequestMB:      256,
		MemoryLimitMB:        512,
	}
}

// MetricSnapshot is a single (timestamp, cpu, memory) sample.
type MetricSnapshot struct {
	TS     int64   `json:"ts"`
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
}

// PodMeta is the stable identity and coarse health of one pod.
type PodMeta struct {
	UID          string   `json:"uid"`
	Name         string   `json:"name"`
	Phase        PodPhase `json:"phase"`
	RestartCount int32    `json:"restartCount"`
}

// DeploymentMetrics is a bounded, newest-first history of a deployment's
// aggregate snapshots.
type DeploymentMetrics struct {
	Snapshots []MetricSnapshot `json:"snapshots"`
}

// PodRecord is PodMeta plus its own bounded, newest-first snapshot history.
type PodRecord struct {
	Meta      PodMeta           `json:"meta"`
	Snapshots []MetricSnapshot  `json:"snapshots"`
}

// Deployment is the relational record of a user's workload. It is owned by
// the store: created on a successful Create work item, mutated by the
// Provisioner (desired state) and the Reconciler (observed state), and
// removed on successful delete.
type Deployment struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	ProjectID          uuid.UUID
	Name               string
	Image              string
	Port               int32
	DesiredReplicas    int32
	ReadyReplicas      int32
	AvailableReplicas  int32
	Resources          ResourceSpec
	EnvironmentVars    map[string]string
	SecretKeys         []string
	Labels             map[string]string
	Status             DeploymentStatus
	Subdomain          string
	CustomDomain       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DeploymentEvent is an append-only log entry produced by state transitions
// and user-visible failures.
type DeploymentEvent struct {
	ID           uuid.UUID
	DeploymentID uuid.UUID
	Type         string
	Message      string
	CreatedAt    time.Time
}

// Common event type tags used when recording DeploymentEvent rows.
const (
	EventTypeStatusChanged   = "status_changed"
	EventTypeRetryExhausted  = "retry_exhausted"
	EventTypeDriftRepaired   = "drift_repaired"
	EventTypeClusterMissing  = "cluster_object_missing"
)
