package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/poddle/compute/internal/domain"
)

// driftLoop is the safety net for missed watch events and out-of-band
// edits: every reconciliationInterval, every non-terminal deployment's live
// cluster object is re-fetched and any drift is written back.
func (r *Reconciler) driftLoop(ctx context.Context) {
	ticker := time.NewTicker(r.reconciliationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runDriftPass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) runDriftPass(ctx context.Context) {
	deployments, err := r.repo.ListActive(ctx)
	if err != nil {
		r.log.Error("list active deployments for drift pass failed", zap.Error(err))
		return
	}

	for _, d := range deployments {
		r.driftOne(ctx, d)
	}
}

func (r *Reconciler) driftOne(ctx context.Context, d *domain.Deployment) {
	ns := domain.Namespace(d.UserID)
	name := domain.ResourceName(d.ID)

	obj, err := r.gw.GetWorkload(ctx, ns, name)
	if apierrors.IsNotFound(err) {
		if _, err := r.repo.UpdateStatus(ctx, d.ID, domain.StatusFailed); err != nil {
			r.log.Error("mark drift-missing deployment failed", zap.Error(err))
			return
		}
		_ = r.repo.InsertEvent(ctx, &domain.DeploymentEvent{
			DeploymentID: d.ID,
			Type:         domain.EventTypeClusterMissing,
			Message:      "workload object missing from cluster during drift check",
		})
		r.publishProject(ctx, d.ProjectID.String(), domain.NewStatusUpdate(d.ID, domain.StatusFailed, time.Now().Unix()))
		return
	}
	if err != nil {
		r.log.Error("get workload for drift check failed", zap.Error(err))
		return
	}

	newStatus := domain.DetermineDeploymentStatus(obj.DesiredReplicas, obj.ReadyReplicas, obj.AvailableReplicas, obj.UpdatedReplicas)
	statusChanged := newStatus != d.Status
	replicasChanged := obj.ReadyReplicas != d.ReadyReplicas || obj.AvailableReplicas != d.AvailableReplicas
	desiredChanged := obj.DesiredReplicas != d.DesiredReplicas

	if !statusChanged && !replicasChanged && !desiredChanged {
		return
	}

	if statusChanged || replicasChanged {
		if _, err := r.repo.UpdateObservedReplicas(ctx, d.ID, newStatus, obj.ReadyReplicas, obj.AvailableReplicas); err != nil {
			r.log.Error("write back drift observed replicas failed", zap.Error(err))
			return
		}
	}
	if desiredChanged {
		if err := r.repo.UpdateDesiredReplicas(ctx, d.ID, obj.DesiredReplicas); err != nil {
			r.log.Error("write back drift desired replicas failed", zap.Error(err))
			return
		}
	}

	_ = r.repo.InsertEvent(ctx, &domain.DeploymentEvent{
		DeploymentID: d.ID,
		Type:         domain.EventTypeDriftRepaired,
		Message:      "drift loop corrected observed cluster state",
	})
	if statusChanged {
		r.publishProject(ctx, d.ProjectID.String(), domain.NewStatusUpdate(d.ID, newStatus, time.Now().Unix()))
	}
}
