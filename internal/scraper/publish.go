package scraper

import (
	"context"

	"go.uber.org/zap"

	"github.com/poddle/compute/internal/domain"
)

// publish writes every deployment bucket's snapshots to the cache and fans
// them out on the pub/sub channels. A failure on one deployment is logged
// and does not abort the rest of the tick.
func (s *Scraper) publish(ctx context.Context, t tree) error {
	for projectID, byDeployment := range t {
		var updates []domain.MetricsUpdate
		for deploymentID, d := range byDeployment {
			valid, err := s.cache.ValidPodUIDs(ctx, deploymentID)
			if err != nil {
				s.log.Warn("read valid pod uids failed", zap.Error(err), zap.String("deployment_id", deploymentID.String()))
				continue
			}

			if err := s.cache.AppendDeploymentSnapshot(ctx, deploymentID, d.snapshot()); err != nil {
				s.log.Warn("append deployment snapshot failed", zap.Error(err), zap.String("deployment_id", deploymentID.String()))
				continue
			}

			var podUpdates []domain.PodMetricsEntry
			for uid, pod := range d.pods {
				if !valid[uid] {
					continue
				}
				if err := s.cache.UpsertPodMeta(ctx, deploymentID, pod.meta()); err != nil {
					s.log.Warn("upsert pod meta failed", zap.Error(err))
					continue
				}
				if err := s.cache.AppendPodSnapshot(ctx, deploymentID, uid, pod.snapshot()); err != nil {
					s.log.Warn("append pod snapshot failed", zap.Error(err))
					continue
				}
				podUpdates = append(podUpdates, domain.PodMetricsEntry{Meta: pod.meta(), Snapshot: pod.snapshot()})
			}

			if len(podUpdates) > 0 {
				msg := domain.NewPodMetricsUpdate(podUpdates)
				if err := s.cache.Publish(ctx, "deployment:"+deploymentID.String()+":metrics", msg); err != nil {
					s.log.Warn("publish pod metrics update failed", zap.Error(err))
				}
			}

			updates = append(updates, domain.MetricsUpdate{
				Type:     domain.EventMetricsUpdate,
				ID:       deploymentID.String(),
				Snapshot: d.snapshot(),
			})
		}

		if len(updates) == 0 {
			continue
		}
		if err := s.cache.Publish(ctx, "project:"+projectID.String()+":metrics", updates); err != nil {
			s.log.Warn("publish metrics update failed", zap.Error(err), zap.String("project_id", projectID.String()))
		}
	}
	return nil
}
