package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringMap is a generic jsonb-backed map, used for environment variables
// and labels. Grounded on the teacher's hand-rolled JSON driver.Valuer type
// (internal/db/application_models.go in the source project).
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(data, m)
}

// ResourceSpecColumn is the jsonb-backed ResourceSpec value.
type ResourceSpecColumn struct {
	CPURequestMillicores int32 `json:"cpuRequestMillicores"`
	CPULimitMillicores   int32 `json:"cpuLimitMillicores"`
	MemoryRequestMB      int32 `json:"memoryRequestMb"`
	MemoryLimitMB        int32 `json:"memoryLimitMb"`
}

func (r ResourceSpecColumn) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *ResourceSpecColumn) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(data, r)
}

// Deployment is the GORM-mapped row backing domain.Deployment.
type Deployment struct {
	ID                uuid.UUID          `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID          `gorm:"type:uuid;not null;index"`
	ProjectID         uuid.UUID          `gorm:"type:uuid;not null;index"`
	Name              string             `gorm:"not null"`
	Image             string             `gorm:"not null"`
	Port              int32              `gorm:"not null"`
	DesiredReplicas   int32              `gorm:"not null;default:1"`
	ReadyReplicas     int32              `gorm:"not null;default:0"`
	AvailableReplicas int32              `gorm:"not null;default:0"`
	Resources         ResourceSpecColumn `gorm:"type:jsonb"`
	EnvironmentVars   StringMap          `gorm:"type:jsonb"`
	SecretKeys        pq.StringArray     `gorm:"type:text[]"`
	Labels            StringMap          `gorm:"type:jsonb"`
	Status            string             `gorm:"not null;index"`
	Subdomain         string
	CustomDomain      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Deployment) TableName() string { return "deployments" }

// DeploymentEvent is the GORM-mapped append-only event log row.
type DeploymentEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeploymentID uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType    string    `gorm:"column:type;not null"`
	Message      string
	CreatedAt    time.Time
}

func (DeploymentEvent) TableName() string { return "deployment_events" }
