package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/poddle/compute/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the relational store's view of Deployment and
// DeploymentEvent. The Deployment entity is owned by this store; cluster
// objects and cache entities are not.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func toRow(d *domain.Deployment) *Deployment {
	return &Deployment{
		ID:                d.ID,
		UserID:            d.UserID,
		ProjectID:         d.ProjectID,
		Name:              d.Name,
		Image:             d.Image,
		Port:              d.Port,
		DesiredReplicas:   d.DesiredReplicas,
		ReadyReplicas:     d.ReadyReplicas,
		AvailableReplicas: d.AvailableReplicas,
		Resources: ResourceSpecColumn{
			CPURequestMillicores: d.Resources.CPURequestMillicores,
			CPULimitMillicores:   d.Resources.CPULimitMillicores,
			MemoryRequestMB:      d.Resources.MemoryRequestMB,
			MemoryLimitMB:        d.Resources.MemoryLimitMB,
		},
		EnvironmentVars: d.EnvironmentVars,
		SecretKeys:      d.SecretKeys,
		Labels:          d.Labels,
		Status:          string(d.Status),
		Subdomain:       d.Subdomain,
		CustomDomain:    d.CustomDomain,
	}
}

func fromRow(r *Deployment) *domain.Deployment {
	return &domain.Deployment{
		ID:                r.ID,
		UserID:            r.UserID,
		ProjectID:         r.ProjectID,
		Name:              r.Name,
		Image:             r.Image,
		Port:              r.Port,
		DesiredReplicas:   r.DesiredReplicas,
		ReadyReplicas:     r.ReadyReplicas,
		AvailableReplicas: r.AvailableReplicas,
		Resources: domain.ResourceSpec{
			CPURequestMillicores: r.Resources.CPURequestMillicores,
			CPULimitMillicores:   r.Resources.CPULimitMillicores,
			MemoryRequestMB:      r.Resources.MemoryRequestMB,
			MemoryLimitMB:        r.Resources.MemoryLimitMB,
		},
		EnvironmentVars: r.EnvironmentVars,
		SecretKeys:      r.SecretKeys,
		Labels:          r.Labels,
		Status:          domain.DeploymentStatus(r.Status),
		Subdomain:       r.Subdomain,
		CustomDomain:    r.CustomDomain,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Create inserts a new Deployment row. It no-ops on a conflicting id instead
// of erroring, so a redelivered create work item converges rather than
// failing the whole handler on retry.
func (r *Repository) Create(ctx context.Context, d *domain.Deployment) error {
	row := toRow(d)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// Get fetches a Deployment by id, or gorm.ErrRecordNotFound.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	var row Deployment
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return fromRow(&row), nil
}

// UpdateStatus sets the status column and returns the number of rows
// affected, so the caller can detect "deployment already deleted" (zero
// rows) and surface it as an inconsistency.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DeploymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Deployment{}).
		Where("id = ?", id).
		Update("status", string(status))
	return res.RowsAffected, res.Error
}

// UpdateObservedReplicas writes back the ready/available replica counts the
// Reconciler observed from the cluster, alongside status, in one statement.
func (r *Repository) UpdateObservedReplicas(ctx context.Context, id uuid.UUID, status domain.DeploymentStatus, ready, available int32) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Deployment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":             string(status),
			"ready_replicas":     ready,
			"available_replicas": available,
		})
	return res.RowsAffected, res.Error
}

// UpdateDesiredReplicas writes a replica-count drift fix (cluster is
// authoritative for desired_replicas once it has diverged).
func (r *Repository) UpdateDesiredReplicas(ctx context.Context, id uuid.UUID, desired int32) error {
	return r.db.WithContext(ctx).Model(&Deployment{}).
		Where("id = ?", id).
		Update("desired_replicas", desired).Error
}

// Patch applies a partial, field-level update from an Update work item.
func (r *Repository) Patch(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Deployment{}).Where("id = ?", id).Updates(fields).Error
}

// Delete removes the Deployment row. Called after successful cluster
// teardown.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&Deployment{}, "id = ?", id).Error
}

// ListActive returns every deployment whose status is outside the terminal
// set, for the drift loop and event watcher's "does this row still exist"
// checks.
func (r *Repository) ListActive(ctx context.Context) ([]*domain.Deployment, error) {
	var rows []Deployment
	terminal := []string{string(domain.StatusFailed), string(domain.StatusSuspended), string(domain.StatusImagePullError)}
	if err := r.db.WithContext(ctx).Where("status NOT IN ?", terminal).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Deployment, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

// InsertEvent appends a DeploymentEvent row.
func (r *Repository) InsertEvent(ctx context.Context, ev *domain.DeploymentEvent) error {
	row := &DeploymentEvent{
		ID:           ev.ID,
		DeploymentID: ev.DeploymentID,
		EventType:    ev.Type,
		Message:      ev.Message,
		CreatedAt:    ev.CreatedAt,
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
