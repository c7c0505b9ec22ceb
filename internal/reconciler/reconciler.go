// Package reconciler implements the Reconciler: an event watcher that keeps
// the deployment row in sync with observed cluster state, and a drift loop
// that catches anything the watcher missed.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/poddle/compute/internal/cache"
	"github.com/poddle/compute/internal/cluster"
	"github.com/poddle/compute/internal/db"
)

// Reconciler owns the collaborators its two duties share.
type Reconciler struct {
	gw                     *cluster.Gateway
	repo                   *db.Repository
	cache                  *cache.MetricsCache
	log                    *zap.Logger
	reconciliationInterval time.Duration
}

func New(gw *cluster.Gateway, repo *db.Repository, mc *cache.MetricsCache, reconciliationInterval time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{gw: gw, repo: repo, cache: mc, reconciliationInterval: reconciliationInterval, log: log}
}

// Run starts the event watcher and the drift loop, and blocks until ctx is
// cancelled and both have stopped.
func (r *Reconciler) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.watchEvents(ctx)
		close(done)
	}()

	r.driftLoop(ctx)
	<-done
	return nil
}

func (r *Reconciler) publishProject(ctx context.Context, projectID string, payload interface{}) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	channel := "project:" + projectID + ":metrics"
	if err := r.cache.Publish(pctx, channel, payload); err != nil {
		r.log.Warn("publish on project channel failed", zap.Error(err), zap.String("project_id", projectID))
	}
}
