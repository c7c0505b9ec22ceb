package cluster

import (
	"context"
	"time"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// nextBackoff doubles d, capped at maxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// WatchWorkloads returns an infinite stream of workload events filtered to
// the configured managed-by label. The stream auto-recovers with
// exponential backoff on transient errors; an Err event is emitted but does
// not end the stream. The channel is closed when ctx is cancelled.
func (g *Gateway) WatchWorkloads(ctx context.Context) <-chan WorkloadEvent {
	out := make(chan WorkloadEvent)
	go func() {
		defer close(out)
		backoff := minBackoff
		for ctx.Err() == nil {
			w, err := g.clientset.AppsV1().Deployments("").Watch(ctx, metav1.ListOptions{
				LabelSelector: g.cfg.LabelSelector,
			})
			if err != nil {
				g.log.Warn("watch workloads failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
				if !sendWorkload(ctx, out, WorkloadEvent{Kind: EventErr, Err: err}) {
					return
				}
				if !sleepCtx(ctx, backoff) {
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}
			backoff = minBackoff

			if !sendWorkload(ctx, out, WorkloadEvent{Kind: EventInit}) {
				w.Stop()
				return
			}
			g.drainWorkloadWatch(ctx, w, out)
		}
	}()
	return out
}

func (g *Gateway) drainWorkloadWatch(ctx context.Context, w watch.Interface, out chan<- WorkloadEvent) {
	defer w.Stop()
	for {
		select {
		case ev, ok := <-w.ResultChan():
			if !ok {
				return
			}
			obj, ok := ev.Object.(*appsv1.Deployment)
			if !ok {
				continue
			}
			kind, ok := translateEventType(ev.Type)
			if !ok {
				continue
			}
			var desired int32
			if obj.Spec.Replicas != nil {
				desired = *obj.Spec.Replicas
			}
			if !sendWorkload(ctx, out, WorkloadEvent{Kind: kind, Object: WorkloadObservation{
				Namespace:         obj.Namespace,
				Name:              obj.Name,
				DesiredReplicas:   desired,
				ReadyReplicas:     obj.Status.ReadyReplicas,
				AvailableReplicas: obj.Status.AvailableReplicas,
				UpdatedReplicas:   obj.Status.UpdatedReplicas,
				Labels:            obj.Labels,
			}}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// WatchPods returns an infinite stream of pod events filtered to the
// configured managed-by label, with the same auto-recovery semantics as
// WatchWorkloads.
func (g *Gateway) WatchPods(ctx context.Context) <-chan PodEvent {
	out := make(chan PodEvent)
	go func() {
		defer close(out)
		backoff := minBackoff
		for ctx.Err() == nil {
			w, err := g.clientset.CoreV1().Pods("").Watch(ctx, metav1.ListOptions{
				LabelSelector: g.cfg.LabelSelector,
			})
			if err != nil {
				g.log.Warn("watch pods failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
				if !sendPod(ctx, out, PodEvent{Kind: EventErr, Err: err}) {
					return
				}
				if !sleepCtx(ctx, backoff) {
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}
			backoff = minBackoff

			if !sendPod(ctx, out, PodEvent{Kind: EventInit}) {
				w.Stop()
				return
			}
			g.drainPodWatch(ctx, w, out)
		}
	}()
	return out
}

func (g *Gateway) drainPodWatch(ctx context.Context, w watch.Interface, out chan<- PodEvent) {
	defer w.Stop()
	for {
		select {
		case ev, ok := <-w.ResultChan():
			if !ok {
				return
			}
			pod, ok := ev.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			kind, ok := translateEventType(ev.Type)
			if !ok {
				continue
			}
			if !sendPod(ctx, out, PodEvent{Kind: kind, Object: podObservation(pod)}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func translateEventType(t watch.EventType) (EventKind, bool) {
	switch t {
	case watch.Added, watch.Modified:
		return EventApply, true
	case watch.Deleted:
		return EventDelete, true
	default:
		return 0, false
	}
}

func podObservation(pod *corev1.Pod) PodObservation {
	var restarts int32
	var waiting []string
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			waiting = append(waiting, cs.State.Waiting.Reason)
		}
	}
	return PodObservation{
		Namespace:      pod.Namespace,
		Name:           pod.Name,
		UID:            string(pod.UID),
		Phase:          string(pod.Status.Phase),
		Labels:         pod.Labels,
		RestartCount:   restarts,
		WaitingReasons: waiting,
	}
}

func sendWorkload(ctx context.Context, out chan<- WorkloadEvent, ev WorkloadEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sendPod(ctx context.Context, out chan<- PodEvent, ev PodEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
