package scraper

import (
	"github.com/google/uuid"
	"github.com/prometheus/common/model"

	"github.com/poddle/compute/internal/domain"
)

// podBuffer accumulates one pod's samples for a single tick.
type podBuffer struct {
	uid      string
	name     string
	cpu      float64
	memory   float64
	restarts int32
	ts       int64
}

// meta reports Phase as Running unconditionally. The CPU query requires a
// kube_pod_status_phase == 1 series but does not copy its phase label into
// the result, so every pod that reaches a buffer is reported as Running,
// whatever its actual phase.
func (b *podBuffer) meta() domain.PodMeta {
	return domain.PodMeta{UID: b.uid, Name: b.name, Phase: domain.PodRunning, RestartCount: b.restarts}
}

// deploymentBuffer accumulates one deployment's samples for a single tick.
// cpu is summed sample by sample during the CPU pass; memory is set once,
// after every pod buffer is complete, to the sum of this tick's pod memory
// values.
type deploymentBuffer struct {
	id     uuid.UUID
	cpu    float64
	memory float64
	ts     int64
	pods   map[string]*podBuffer // uid -> buffer
	byName map[string]string     // pod name -> uid, for matching memory/restart samples
}

// tree is project_id -> deployment_id -> buffer.
type tree map[uuid.UUID]map[uuid.UUID]*deploymentBuffer

func (t tree) deployment(projectID, deploymentID uuid.UUID) *deploymentBuffer {
	byDeployment, ok := t[projectID]
	if !ok {
		byDeployment = make(map[uuid.UUID]*deploymentBuffer)
		t[projectID] = byDeployment
	}
	d, ok := byDeployment[deploymentID]
	if !ok {
		d = &deploymentBuffer{id: deploymentID, pods: map[string]*podBuffer{}, byName: map[string]string{}}
		byDeployment[deploymentID] = d
	}
	return d
}

func sampleOwner(m model.Metric) (projectID, deploymentID uuid.UUID, ok bool) {
	pid, err := uuid.Parse(string(m["label_project_id"]))
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	did, err := uuid.Parse(string(m["label_deployment_id"]))
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return pid, did, true
}

// fold builds the project/deployment/pod tree from the three query results.
// CPU samples create pod buffers (they carry the pod uid via kube_pod_info);
// memory and restart samples only update a buffer the CPU pass already
// created, matched by pod name.
func fold(cpu, memory, restarts model.Vector) tree {
	t := make(tree)

	for _, sample := range cpu {
		projectID, deploymentID, ok := sampleOwner(sample.Metric)
		if !ok {
			continue
		}
		uid := string(sample.Metric["uid"])
		if uid == "" {
			continue
		}
		podName := string(sample.Metric["pod"])
		d := t.deployment(projectID, deploymentID)
		pod, exists := d.pods[uid]
		if !exists {
			pod = &podBuffer{uid: uid, name: podName}
			d.pods[uid] = pod
			d.byName[podName] = uid
		}
		millicores := float64(sample.Value) * 1000
		pod.cpu += millicores
		pod.ts = sample.Timestamp.Unix()
		d.cpu += millicores
		d.ts = pod.ts
	}

	for _, sample := range memory {
		projectID, deploymentID, ok := sampleOwner(sample.Metric)
		if !ok {
			continue
		}
		d, exists := t[projectID][deploymentID]
		if !exists {
			continue
		}
		podName := string(sample.Metric["pod"])
		uid, exists := d.byName[podName]
		if !exists {
			continue
		}
		d.pods[uid].memory += float64(sample.Value) / (1024 * 1024)
	}

	for _, sample := range restarts {
		projectID, deploymentID, ok := sampleOwner(sample.Metric)
		if !ok {
			continue
		}
		d, exists := t[projectID][deploymentID]
		if !exists {
			continue
		}
		podName := string(sample.Metric["pod"])
		uid, exists := d.byName[podName]
		if !exists {
			continue
		}
		d.pods[uid].restarts = int32(sample.Value)
	}

	for _, byDeployment := range t {
		for _, d := range byDeployment {
			var memSum float64
			for _, pod := range d.pods {
				memSum += pod.memory
			}
			d.memory = memSum
		}
	}

	return t
}

func (b *podBuffer) snapshot() domain.MetricSnapshot {
	return domain.MetricSnapshot{TS: b.ts, CPU: b.cpu, Memory: b.memory}
}

func (d *deploymentBuffer) snapshot() domain.MetricSnapshot {
	return domain.MetricSnapshot{TS: d.ts, CPU: d.cpu, Memory: d.memory}
}
