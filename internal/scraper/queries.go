package scraper

import "fmt"

// Join fragments. The CPU query joins all three series: kube_pod_info
// carries the pod uid, kube_pod_status_phase==1 keeps one series per pod
// (its phase label is not copied into the result), and kube_pod_labels
// carries the platform's own project/deployment labels. The memory and
// restart queries join only kube_pod_labels. Every query excludes pods
// already marked for deletion so a terminating pod's last sample does not
// outlive it in the tree.
const (
	podInfoJoin  = `* on(pod, namespace) group_left(uid) kube_pod_info`
	phaseJoin    = `* on(pod, namespace) group_left() (kube_pod_status_phase == 1)`
	labelsJoin   = `* on(pod, namespace) group_left(label_project_id, label_deployment_id) kube_pod_labels{label_managed_by="poddle"}`
	deletionGate = `unless on(pod, namespace) kube_pod_deletion_timestamp`
)

func cpuQuery(rateWindow string) string {
	return fmt.Sprintf(
		`sum by (pod, namespace) (rate(container_cpu_usage_seconds_total{container!="", container!="POD"}[%s]) %s) %s %s %s`,
		rateWindow, deletionGate, podInfoJoin, phaseJoin, labelsJoin,
	)
}

func memoryQuery() string {
	return fmt.Sprintf(
		`sum by (pod, namespace) (container_memory_working_set_bytes{container!="", container!="POD"} %s) %s`,
		deletionGate, labelsJoin,
	)
}

func restartQuery() string {
	return fmt.Sprintf(
		`sum by (pod, namespace) (kube_pod_container_status_restarts_total %s) %s`,
		deletionGate, labelsJoin,
	)
}
