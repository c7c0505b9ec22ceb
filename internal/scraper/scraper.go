// Package scraper implements the MetricsScraper: a ticking job that pulls
// CPU, memory, and restart-count series out of Prometheus, folds them into
// a per-deployment/per-pod tree, and republishes them through the cache.
package scraper

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/poddle/compute/internal/cache"
)

// queryAPI is the slice of v1.API the scraper actually calls. A narrower,
// consumer-owned interface so tests can supply a fake without implementing
// the whole Prometheus client surface.
type queryAPI interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error)
}

// NewPrometheusClient dials the Prometheus HTTP API and wraps it in v1.API.
func NewPrometheusClient(address string) (v1.API, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, err
	}
	return v1.NewAPI(client), nil
}

// Scraper owns one tick's worth of collaborators.
type Scraper struct {
	prom       queryAPI
	cache      *cache.MetricsCache
	rateWindow string
	interval   time.Duration
	timeout    time.Duration
	log        *zap.Logger
}

func New(prom queryAPI, mc *cache.MetricsCache, rateWindow string, interval, timeout time.Duration, log *zap.Logger) *Scraper {
	return &Scraper{prom: prom, cache: mc, rateWindow: rateWindow, interval: interval, timeout: timeout, log: log}
}

// Run ticks every interval until ctx is cancelled, running one scrape per
// tick. A slow or failed tick is logged and does not stop the loop; the next
// tick tries again.
func (s *Scraper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.Error("scrape tick failed", zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Scraper) tick(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now()
	var cpu, mem, restarts model.Vector

	g, gctx := errgroup.WithContext(tctx)
	g.Go(func() error {
		v, err := s.runQuery(gctx, cpuQuery(s.rateWindow), now)
		cpu = v
		return err
	})
	g.Go(func() error {
		v, err := s.runQuery(gctx, memoryQuery(), now)
		mem = v
		return err
	})
	g.Go(func() error {
		v, err := s.runQuery(gctx, restartQuery(), now)
		restarts = v
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	tree := fold(cpu, mem, restarts)
	if len(tree) == 0 {
		return nil
	}
	return s.publish(ctx, tree)
}

func (s *Scraper) runQuery(ctx context.Context, query string, ts time.Time) (model.Vector, error) {
	value, warnings, err := s.prom.Query(ctx, query, ts)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.log.Warn("prometheus query warning", zap.String("warning", w))
	}
	vec, ok := value.(model.Vector)
	if !ok {
		return nil, nil
	}
	return vec, nil
}
