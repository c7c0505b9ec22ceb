package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/poddle/compute/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*MetricsCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, 3), mr
}

func TestAppendDeploymentSnapshot_NoOpWhenKeyAbsent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	err := c.AppendDeploymentSnapshot(ctx, id, domain.MetricSnapshot{TS: 1, CPU: 10, Memory: 20})
	require.NoError(t, err)

	snaps, err := c.ReadDeploymentMetrics(ctx, id, 10)
	require.NoError(t, err)
	require.Empty(t, snaps, "append on a missing key must be a no-op, not resurrect it")
}

func TestAppendDeploymentSnapshot_AppendsAndTrims(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.EnsureDeploymentKeys(ctx, id))

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, c.AppendDeploymentSnapshot(ctx, id, domain.MetricSnapshot{TS: i, CPU: float64(i), Memory: float64(i)}))
	}

	snaps, err := c.ReadDeploymentMetrics(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 3, "list must be trimmed to snapshotsToKeep")
	require.Equal(t, int64(5), snaps[0].TS, "head must be newest")
}

func TestDeleteDeploymentKeys_StopsFurtherAppends(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.EnsureDeploymentKeys(ctx, id))
	require.NoError(t, c.AppendDeploymentSnapshot(ctx, id, domain.MetricSnapshot{TS: 1}))
	require.NoError(t, c.DeleteDeploymentKeys(ctx, id))

	err := c.AppendDeploymentSnapshot(ctx, id, domain.MetricSnapshot{TS: 2})
	require.NoError(t, err)

	snaps, err := c.ReadDeploymentMetrics(ctx, id, 10)
	require.NoError(t, err)
	require.Empty(t, snaps, "ghost appends after delete must not resurrect the entity")
}

func TestListPods_FiltersToValidUIDs(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.AddPodUID(ctx, id, "u1", 100))
	require.NoError(t, c.UpsertPodMeta(ctx, id, domain.PodMeta{UID: "u1", Name: "pod-1", Phase: domain.PodRunning}))
	require.NoError(t, c.AppendPodSnapshot(ctx, id, "u1", domain.MetricSnapshot{TS: 1, CPU: 5}))

	valid, err := c.ValidPodUIDs(ctx, id)
	require.NoError(t, err)
	require.True(t, valid["u1"])
	require.False(t, valid["u2"])

	entries, total, err := c.ListPods(ctx, id, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	require.Equal(t, "pod-1", entries[0].Meta.Name)
}

func TestRemovePodUID_DeletesPodKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.AddPodUID(ctx, id, "u1", 100))
	require.NoError(t, c.RemovePodUID(ctx, id, "u1"))

	err := c.AppendPodSnapshot(ctx, id, "u1", domain.MetricSnapshot{TS: 2})
	require.NoError(t, err)
	require.False(t, mr.Exists(podMetricsKey(id, "u1")), "pod metric list must stay deleted")

	_, total, err := c.ListPods(ctx, id, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(0), total)
}
