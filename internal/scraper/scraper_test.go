package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poddle/compute/internal/cache"
)

// fakeQueryAPI returns a canned model.Vector per query string, keyed by
// substring so individual tests don't need to match the full PromQL text.
type fakeQueryAPI struct {
	byQuery map[string]model.Vector
}

func (f *fakeQueryAPI) Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error) {
	for substr, vec := range f.byQuery {
		if containsQuery(query, substr) {
			return vec, nil, nil
		}
	}
	return model.Vector{}, nil, nil
}

func containsQuery(query, substr string) bool {
	for i := 0; i+len(substr) <= len(query); i++ {
		if query[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func newTestScraper(t *testing.T, api *fakeQueryAPI) (*Scraper, *cache.MetricsCache) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mc := cache.New(rdb, 10)
	return New(api, mc, "2m", 15*time.Second, 5*time.Second, zap.NewNop()), mc
}

func TestTick_FoldsAndPublishesSurvivingPod(t *testing.T) {
	projectID, deploymentID := uuid.New(), uuid.New()
	ctx := context.Background()

	api := &fakeQueryAPI{byQuery: map[string]model.Vector{
		"container_cpu_usage_seconds_total": {{
			Metric: model.Metric{
				"pod": "app-0", "namespace": "user-abcd1234", "uid": "pod-uid-1",
				"label_project_id": model.LabelValue(projectID.String()),
				"label_deployment_id": model.LabelValue(deploymentID.String()),
			},
			Value:     0.5,
			Timestamp: model.Now(),
		}},
		"container_memory_working_set_bytes": {{
			Metric: model.Metric{
				"pod": "app-0", "namespace": "user-abcd1234",
				"label_project_id": model.LabelValue(projectID.String()),
				"label_deployment_id": model.LabelValue(deploymentID.String()),
			},
			Value:     2097152,
			Timestamp: model.Now(),
		}},
		"kube_pod_container_status_restarts_total": {{
			Metric: model.Metric{
				"pod": "app-0", "namespace": "user-abcd1234",
				"label_project_id": model.LabelValue(projectID.String()),
				"label_deployment_id": model.LabelValue(deploymentID.String()),
			},
			Value:     3,
			Timestamp: model.Now(),
		}},
	}}

	s, mc := newTestScraper(t, api)
	require.NoError(t, mc.AddPodUID(ctx, deploymentID, "pod-uid-1", time.Now().Unix()))
	require.NoError(t, mc.EnsureDeploymentKeys(ctx, deploymentID))

	require.NoError(t, s.tick(ctx))

	snaps, err := mc.ReadDeploymentMetrics(ctx, deploymentID, 5)
	require.NoError(t, err)
	require.NotEmpty(t, snaps)
	require.InDelta(t, 500.0, snaps[0].CPU, 0.001)
	require.InDelta(t, 2.0, snaps[0].Memory, 0.001)

	entries, total, err := mc.ListPods(ctx, deploymentID, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	require.Equal(t, int32(3), entries[0].Meta.RestartCount)
}

func TestTick_DropsGhostPodNotInIndex(t *testing.T) {
	projectID, deploymentID := uuid.New(), uuid.New()
	ctx := context.Background()

	api := &fakeQueryAPI{byQuery: map[string]model.Vector{
		"container_cpu_usage_seconds_total": {{
			Metric: model.Metric{
				"pod": "ghost-0", "namespace": "user-abcd1234", "uid": "ghost-uid",
				"label_project_id": model.LabelValue(projectID.String()),
				"label_deployment_id": model.LabelValue(deploymentID.String()),
			},
			Value:     1,
			Timestamp: model.Now(),
		}},
	}}

	s, mc := newTestScraper(t, api)
	require.NoError(t, mc.EnsureDeploymentKeys(ctx, deploymentID))

	require.NoError(t, s.tick(ctx))

	entries, total, err := mc.ListPods(ctx, deploymentID, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, total)
	require.Empty(t, entries)
}

func TestTick_SkipsEmptyTreeWithoutCacheWrites(t *testing.T) {
	api := &fakeQueryAPI{byQuery: map[string]model.Vector{}}
	s, _ := newTestScraper(t, api)
	require.NoError(t, s.tick(context.Background()))
}

func TestFold_DiscardsSamplesMissingOwnerLabels(t *testing.T) {
	cpu := model.Vector{{
		Metric:    model.Metric{"pod": "x", "namespace": "user-abcd1234", "uid": "u1"},
		Value:     1,
		Timestamp: model.Now(),
	}}
	tr := fold(cpu, nil, nil)
	require.Empty(t, tr)
}

func TestFold_DiscardsCPUSampleWithEmptyUID(t *testing.T) {
	projectID, deploymentID := uuid.New(), uuid.New()
	cpu := model.Vector{{
		Metric: model.Metric{
			"pod": "x", "namespace": "user-abcd1234",
			"label_project_id":    model.LabelValue(projectID.String()),
			"label_deployment_id": model.LabelValue(deploymentID.String()),
		},
		Value:     1,
		Timestamp: model.Now(),
	}}
	tr := fold(cpu, nil, nil)
	require.Empty(t, tr)
}
