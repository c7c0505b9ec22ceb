package domain

import "github.com/google/uuid"

// Pub/sub payload discriminators.
const (
	EventStatusUpdate      = "status_update"
	EventMetricsUpdate     = "metrics_update"
	EventPodMetricsUpdate  = "pod_metrics_update"
	EventSystemMessage     = "system_message"
)

// SystemMessageLevel is the severity of a SystemMessage event.
type SystemMessageLevel string

const (
	LevelInfo  SystemMessageLevel = "info"
	LevelWarn  SystemMessageLevel = "warn"
	LevelError SystemMessageLevel = "error"
)

// StatusUpdate is published on project:{id}:metrics whenever a deployment's
// persisted status changes.
type StatusUpdate struct {
	Type         string           `json:"type"`
	DeploymentID uuid.UUID        `json:"deploymentId"`
	Status       DeploymentStatus `json:"status"`
	Timestamp    int64            `json:"timestamp"`
}

// NewStatusUpdate builds a StatusUpdate with the type discriminator set.
func NewStatusUpdate(id uuid.UUID, status DeploymentStatus, ts int64) StatusUpdate {
	return StatusUpdate{Type: EventStatusUpdate, DeploymentID: id, Status: status, Timestamp: ts}
}

// MetricsUpdate is one entry of the batched array published on
// project:{id}:metrics by the scraper.
type MetricsUpdate struct {
	Type     string          `json:"type"`
	ID       string           `json:"id"`
	Snapshot MetricSnapshot   `json:"snapshot"`
}

// PodMetricsEntry pairs a pod's metadata with its latest snapshot.
type PodMetricsEntry struct {
	Meta     PodMeta        `json:"meta"`
	Snapshot MetricSnapshot `json:"snapshot"`
}

// PodMetricsUpdate is published on deployment:{id}:metrics by the scraper.
type PodMetricsUpdate struct {
	Type    string             `json:"type"`
	Updates []PodMetricsEntry  `json:"updates"`
}

// NewPodMetricsUpdate builds a PodMetricsUpdate with the type discriminator
// set.
func NewPodMetricsUpdate(updates []PodMetricsEntry) PodMetricsUpdate {
	return PodMetricsUpdate{Type: EventPodMetricsUpdate, Updates: updates}
}

// SystemMessage is a free-form, user-visible notice about a deployment.
type SystemMessage struct {
	Type         string             `json:"type"`
	DeploymentID uuid.UUID          `json:"deploymentId"`
	Level        SystemMessageLevel `json:"level"`
	Message      string             `json:"message"`
}

// NewSystemMessage builds a SystemMessage with the type discriminator set.
func NewSystemMessage(id uuid.UUID, level SystemMessageLevel, message string) SystemMessage {
	return SystemMessage{Type: EventSystemMessage, DeploymentID: id, Level: level, Message: message}
}
