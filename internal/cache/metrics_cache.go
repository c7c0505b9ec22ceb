package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/poddle/compute/internal/domain"
)

// MetricsCache is the process-local view over the shared cache described in
// spec.md §4.1. It owns no state of its own beyond the Redis connection.
type MetricsCache struct {
	rdb             *redis.Client
	snapshotsToKeep int64
}

func New(rdb *redis.Client, snapshotsToKeep int64) *MetricsCache {
	return &MetricsCache{rdb: rdb, snapshotsToKeep: snapshotsToKeep}
}

// CacheError wraps a failed cache operation.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("cache: %s: %v", e.Op, e.Err) }
func (e *CacheError) Unwrap() error { return e.Err }

func marshal(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// AppendDeploymentSnapshot pushes the snapshot to the head of the
// deployment's metric list and trims to snapshotsToKeep. It uses LPushX:
// if the key does not already exist, the push is a no-op. This is the
// "push-if-exists" mechanism spec.md §9 requires to avoid resurrecting
// deleted entities — it must be an atomic primitive, not a read-then-write.
func (c *MetricsCache) AppendDeploymentSnapshot(ctx context.Context, id uuid.UUID, snap domain.MetricSnapshot) error {
	payload, err := marshal(snap)
	if err != nil {
		return &CacheError{Op: "append_deployment_snapshot.marshal", Err: err}
	}
	key := deploymentMetricsKey(id)
	pipe := c.rdb.Pipeline()
	pipe.LPushX(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, c.snapshotsToKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return &CacheError{Op: "append_deployment_snapshot", Err: err}
	}
	return nil
}

// AppendPodSnapshot is AppendDeploymentSnapshot's counterpart for a single
// pod's metric list; same push-if-exists-and-trim semantics.
func (c *MetricsCache) AppendPodSnapshot(ctx context.Context, id uuid.UUID, uid string, snap domain.MetricSnapshot) error {
	payload, err := marshal(snap)
	if err != nil {
		return &CacheError{Op: "append_pod_snapshot.marshal", Err: err}
	}
	key := podMetricsKey(id, uid)
	pipe := c.rdb.Pipeline()
	pipe.LPushX(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, c.snapshotsToKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return &CacheError{Op: "append_pod_snapshot", Err: err}
	}
	return nil
}

// UpsertPodMeta unconditionally writes the pod metadata hash. Unlike the
// metric list appends, this is not push-if-exists: metadata is always
// current, and a ghost pod's metadata simply never gets read because it is
// filtered out of ListPods by the pod-uid index.
func (c *MetricsCache) UpsertPodMeta(ctx context.Context, id uuid.UUID, meta domain.PodMeta) error {
	key := podMetaKey(id, meta.UID)
	err := c.rdb.HSet(ctx, key, map[string]interface{}{
		"uid":          meta.UID,
		"name":         meta.Name,
		"phase":        string(meta.Phase),
		"restartCount": meta.RestartCount,
	}).Err()
	if err != nil {
		return &CacheError{Op: "upsert_pod_meta", Err: err}
	}
	return nil
}

// AddPodUID records a pod as belonging to a deployment, keyed on first-seen
// timestamp, and seeds the pod's metric list so later scrape ticks' push-if
// -exists appends are not no-ops. The Reconciler calls this on every pod
// Apply event; only the first call for a uid adds it and seeds its list, so
// the score stays the first-seen timestamp. It is the authoritative index
// the scraper gates on.
func (c *MetricsCache) AddPodUID(ctx context.Context, id uuid.UUID, uid string, firstSeen int64) error {
	added, err := c.rdb.ZAddNX(ctx, deploymentPodsKey(id), redis.Z{Score: float64(firstSeen), Member: uid}).Result()
	if err != nil {
		return &CacheError{Op: "add_pod_uid", Err: err}
	}
	if added == 0 {
		return nil
	}
	if err := c.rdb.RPush(ctx, podMetricsKey(id, uid), seedSnapshotJSON).Err(); err != nil {
		return &CacheError{Op: "add_pod_uid", Err: err}
	}
	return nil
}

// RemovePodUID removes a pod from the deployment's authoritative index on a
// pod Delete event, and deletes its metric/meta keys so a ghost sample for
// the same uid can never resurrect them.
func (c *MetricsCache) RemovePodUID(ctx context.Context, id uuid.UUID, uid string) error {
	pipe := c.rdb.Pipeline()
	pipe.ZRem(ctx, deploymentPodsKey(id), uid)
	pipe.Del(ctx, podMetaKey(id, uid))
	pipe.Del(ctx, podMetricsKey(id, uid))
	if _, err := pipe.Exec(ctx); err != nil {
		return &CacheError{Op: "remove_pod_uid", Err: err}
	}
	return nil
}

// ValidPodUIDs returns the full set of pod uids currently indexed for a
// deployment. The scraper uses this to drop ghost-pod samples.
func (c *MetricsCache) ValidPodUIDs(ctx context.Context, id uuid.UUID) (map[string]bool, error) {
	members, err := c.rdb.ZRange(ctx, deploymentPodsKey(id), 0, -1).Result()
	if err != nil {
		// A read failure degrades to "no valid pods" rather than failing
		// the whole scrape tick: the next tick will try again.
		return map[string]bool{}, nil
	}
	set := make(map[string]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	return set, nil
}

// PodEntry is one row of a ListPods page: metadata plus its snapshot
// history.
type PodEntry struct {
	Meta      domain.PodMeta
	Snapshots []domain.MetricSnapshot
}

// ListPods returns a page of pods newest-first (by first-seen order,
// reversed) along with the total pod count, pipelining the per-uid
// meta+metrics fetch.
func (c *MetricsCache) ListPods(ctx context.Context, id uuid.UUID, offset, limit int64) ([]PodEntry, int64, error) {
	total, err := c.rdb.ZCard(ctx, deploymentPodsKey(id)).Result()
	if err != nil {
		return nil, 0, &CacheError{Op: "list_pods.card", Err: err}
	}
	if total == 0 {
		return nil, 0, nil
	}

	uids, err := c.rdb.ZRevRange(ctx, deploymentPodsKey(id), offset, offset+limit-1).Result()
	if err != nil {
		return nil, 0, &CacheError{Op: "list_pods.range", Err: err}
	}
	if len(uids) == 0 {
		return nil, total, nil
	}

	pipe := c.rdb.Pipeline()
	metaCmds := make([]*redis.MapStringStringCmd, len(uids))
	metricCmds := make([]*redis.StringSliceCmd, len(uids))
	for i, uid := range uids {
		metaCmds[i] = pipe.HGetAll(ctx, podMetaKey(id, uid))
		metricCmds[i] = pipe.LRange(ctx, podMetricsKey(id, uid), 0, c.snapshotsToKeep-1)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, 0, &CacheError{Op: "list_pods.pipeline", Err: err}
	}

	entries := make([]PodEntry, 0, len(uids))
	for i, uid := range uids {
		fields, _ := metaCmds[i].Result()
		meta := domain.PodMeta{UID: uid}
		if fields != nil {
			meta.Name = fields["name"]
			meta.Phase = domain.PodPhase(fields["phase"])
			var rc int32
			fmt.Sscanf(fields["restartCount"], "%d", &rc)
			meta.RestartCount = rc
		}
		raw, _ := metricCmds[i].Result()
		snaps := make([]domain.MetricSnapshot, 0, len(raw))
		for _, r := range raw {
			var s domain.MetricSnapshot
			if json.Unmarshal([]byte(r), &s) == nil {
				snaps = append(snaps, s)
			}
		}
		entries = append(entries, PodEntry{Meta: meta, Snapshots: snaps})
	}
	return entries, total, nil
}

// ReadDeploymentMetrics returns the first n (newest) entries of a
// deployment's metric list.
func (c *MetricsCache) ReadDeploymentMetrics(ctx context.Context, id uuid.UUID, n int64) ([]domain.MetricSnapshot, error) {
	raw, err := c.rdb.LRange(ctx, deploymentMetricsKey(id), 0, n-1).Result()
	if err != nil {
		return nil, &CacheError{Op: "read_deployment_metrics", Err: err}
	}
	out := make([]domain.MetricSnapshot, 0, len(raw))
	for _, r := range raw {
		var s domain.MetricSnapshot
		if json.Unmarshal([]byte(r), &s) == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// seedSnapshotJSON is a zero-valued snapshot used purely to materialize a
// list key. Redis has no way to persist a genuinely empty list, so a real
// first element is required before LPushX-based appends can take effect;
// this sentinel ages out of the window once snapshotsToKeep real samples
// have been pushed.
var seedSnapshotJSON = `{"ts":0,"cpu":0,"memory":0}`

// EnsureDeploymentKeys seeds the deployment's metric list so the first
// scrape's push-if-exists append is not a no-op. Called once by the
// Provisioner's create handler.
func (c *MetricsCache) EnsureDeploymentKeys(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.RPush(ctx, deploymentMetricsKey(id), seedSnapshotJSON).Err(); err != nil {
		return &CacheError{Op: "ensure_deployment_keys", Err: err}
	}
	return nil
}

// DeleteDeploymentKeys removes every cache key owned by a deployment. Called
// by the Provisioner's delete handler so that any in-flight scrape tick's
// push-if-exists appends become no-ops from this point on.
func (c *MetricsCache) DeleteDeploymentKeys(ctx context.Context, id uuid.UUID) error {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, deploymentMetricsKey(id))
	pipe.Del(ctx, deploymentPodsKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return &CacheError{Op: "delete_deployment_keys", Err: err}
	}
	return nil
}

// Publish marshals payload to JSON and publishes it on the given channel.
func (c *MetricsCache) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &CacheError{Op: "publish.marshal", Err: err}
	}
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return &CacheError{Op: "publish", Err: err}
	}
	return nil
}

// Subscribe returns a PubSub handle for the given channels.
func (c *MetricsCache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}
