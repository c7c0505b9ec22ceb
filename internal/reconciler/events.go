package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poddle/compute/internal/cluster"
	"github.com/poddle/compute/internal/db"
	"github.com/poddle/compute/internal/domain"
)

// watchEvents merges the workload and pod watch streams into a single loop
// until ctx is cancelled.
func (r *Reconciler) watchEvents(ctx context.Context) {
	workloads := r.gw.WatchWorkloads(ctx)
	pods := r.gw.WatchPods(ctx)

	for {
		select {
		case ev, ok := <-workloads:
			if !ok {
				workloads = nil
				if pods == nil {
					return
				}
				continue
			}
			r.handleWorkloadEvent(ctx, ev)
		case ev, ok := <-pods:
			if !ok {
				pods = nil
				if workloads == nil {
					return
				}
				continue
			}
			r.handlePodEvent(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) handleWorkloadEvent(ctx context.Context, ev cluster.WorkloadEvent) {
	switch ev.Kind {
	case cluster.EventApply:
		r.handleWorkloadApply(ctx, ev.Object)
	case cluster.EventDelete:
		r.handleWorkloadDelete(ctx, ev.Object)
	case cluster.EventErr:
		r.log.Warn("workload watch error", zap.Error(ev.Err))
	default:
		r.log.Debug("workload watch lifecycle event", zap.Int("kind", int(ev.Kind)))
	}
}

func (r *Reconciler) handleWorkloadApply(ctx context.Context, obj cluster.WorkloadObservation) {
	projectID, deploymentID, ok := ownerIDs(obj.Labels)
	if !ok {
		return
	}

	newStatus := domain.DetermineDeploymentStatus(obj.DesiredReplicas, obj.ReadyReplicas, obj.AvailableReplicas, obj.UpdatedReplicas)

	current, err := r.repo.Get(ctx, deploymentID)
	if err != nil {
		if db.IsNotFound(err) {
			r.reportInconsistency(ctx, projectID, deploymentID)
			return
		}
		r.log.Error("load deployment for workload apply failed", zap.Error(err))
		return
	}
	if current.Status == newStatus && current.ReadyReplicas == obj.ReadyReplicas && current.AvailableReplicas == obj.AvailableReplicas {
		return
	}

	affected, err := r.repo.UpdateObservedReplicas(ctx, deploymentID, newStatus, obj.ReadyReplicas, obj.AvailableReplicas)
	if err != nil {
		r.log.Error("update observed replicas failed", zap.Error(err))
		return
	}
	if affected == 0 {
		r.reportInconsistency(ctx, projectID, deploymentID)
		return
	}

	r.publishProject(ctx, projectID.String(), domain.NewStatusUpdate(deploymentID, newStatus, time.Now().Unix()))
}

func (r *Reconciler) handleWorkloadDelete(ctx context.Context, obj cluster.WorkloadObservation) {
	projectID, deploymentID, ok := ownerIDs(obj.Labels)
	if !ok {
		return
	}
	r.publishProject(ctx, projectID.String(), domain.NewStatusUpdate(deploymentID, domain.StatusDeleted, time.Now().Unix()))
}

func (r *Reconciler) handlePodEvent(ctx context.Context, ev cluster.PodEvent) {
	switch ev.Kind {
	case cluster.EventApply:
		r.handlePodApply(ctx, ev.Object)
	case cluster.EventDelete:
		r.handlePodDelete(ctx, ev.Object)
	case cluster.EventErr:
		r.log.Warn("pod watch error", zap.Error(ev.Err))
	default:
		// Init / InitDone carry no actionable signal for pod health.
	}
}

func (r *Reconciler) handlePodApply(ctx context.Context, obj cluster.PodObservation) {
	projectID, deploymentID, ok := ownerIDs(obj.Labels)
	if !ok {
		return
	}

	if obj.UID != "" {
		if err := r.cache.AddPodUID(ctx, deploymentID, obj.UID, time.Now().Unix()); err != nil {
			r.log.Warn("add pod uid to index failed", zap.Error(err), zap.String("deployment_id", deploymentID.String()))
		}
	}

	var crashReason string
	for _, reason := range obj.WaitingReasons {
		if domain.CrashWaitingReasons[reason] {
			crashReason = reason
			break
		}
	}
	if crashReason == "" {
		return
	}

	current, err := r.repo.Get(ctx, deploymentID)
	if err != nil {
		if db.IsNotFound(err) {
			r.reportInconsistency(ctx, projectID, deploymentID)
		} else {
			r.log.Error("load deployment for pod apply failed", zap.Error(err))
		}
		return
	}

	downgraded := domain.ApplyPodSignal(current.Status, crashReason)
	if downgraded != current.Status {
		if _, err := r.repo.UpdateStatus(ctx, deploymentID, downgraded); err != nil {
			r.log.Error("downgrade to unhealthy failed", zap.Error(err))
			return
		}
		r.publishProject(ctx, projectID.String(), domain.NewStatusUpdate(deploymentID, downgraded, time.Now().Unix()))
	}

	if obj.RestartCount > 0 && obj.RestartCount%3 == 0 {
		msg := domain.NewSystemMessage(deploymentID, domain.LevelError, "deployment is crashing: "+crashReason)
		r.publishProject(ctx, projectID.String(), msg)
	}
}

// handlePodDelete removes the pod from the uid index so the scraper stops
// resurrecting it as a ghost.
func (r *Reconciler) handlePodDelete(ctx context.Context, obj cluster.PodObservation) {
	_, deploymentID, ok := ownerIDs(obj.Labels)
	if !ok || obj.UID == "" {
		return
	}
	if err := r.cache.RemovePodUID(ctx, deploymentID, obj.UID); err != nil {
		r.log.Warn("remove pod uid from index failed", zap.Error(err), zap.String("deployment_id", deploymentID.String()))
	}
}

// reportInconsistency surfaces a zero-rows-affected update (the row was
// already deleted, most likely by a racing Provisioner delete) as a
// system message rather than retrying: there is nothing to retry.
func (r *Reconciler) reportInconsistency(ctx context.Context, projectID, deploymentID uuid.UUID) {
	r.log.Warn("status update affected zero rows", zap.String("deployment_id", deploymentID.String()))
	msg := domain.NewSystemMessage(deploymentID, domain.LevelError, "internal inconsistency")
	r.publishProject(ctx, projectID.String(), msg)
}
