package cluster

// WorkloadSpec is everything CreateWorkload needs to build the container
// and its pod template, per spec.md §4.3 step 3.
type WorkloadSpec struct {
	Image             string
	Port              int32
	DesiredReplicas   int32
	CPURequestMillis  int32
	CPULimitMillis    int32
	MemoryRequestMB   int32
	MemoryLimitMB     int32
	EnvironmentVars   map[string]string
	SecretName        string // set when a bound secret exists; injects SECRET_REFERENCE
	Labels            map[string]string
}

// RouteHosts names the one or two hostnames a route forwards to the
// target service.
type RouteHosts struct {
	Subdomain    string
	CustomDomain string
}

// WorkloadObservation is the subset of an observed workload's status the
// Reconciler's status derivation and drift repair need.
type WorkloadObservation struct {
	Namespace         string
	Name              string
	DesiredReplicas   int32
	ReadyReplicas     int32
	AvailableReplicas int32
	UpdatedReplicas   int32
	Labels            map[string]string
}

// PodObservation is the subset of an observed pod the Reconciler's
// crash-loop detection and restart accounting need.
type PodObservation struct {
	Namespace       string
	Name            string
	UID             string
	Phase           string
	Labels          map[string]string
	RestartCount    int32
	WaitingReasons  []string
}

// EventKind discriminates a watch stream event.
type EventKind int

const (
	EventApply EventKind = iota
	EventDelete
	EventInit
	EventInitDone
	EventErr
)

// WorkloadEvent is one item from WatchWorkloads.
type WorkloadEvent struct {
	Kind    EventKind
	Object  WorkloadObservation
	Err     error
}

// PodEvent is one item from WatchPods.
type PodEvent struct {
	Kind   EventKind
	Object PodObservation
	Err    error
}
