package cluster

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

const secretReferenceEnvVar = "SECRET_REFERENCE"

func resourceRequirements(spec WorkloadSpec) corev1.ResourceRequirements {
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(fmt.Sprintf("%dm", spec.CPURequestMillis)),
			corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", spec.MemoryRequestMB)),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(fmt.Sprintf("%dm", spec.CPULimitMillis)),
			corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", spec.MemoryLimitMB)),
		},
	}
}

func containerEnv(spec WorkloadSpec) []corev1.EnvVar {
	env := make([]corev1.EnvVar, 0, len(spec.EnvironmentVars)+1)
	for k, v := range spec.EnvironmentVars {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	if spec.SecretName != "" {
		env = append(env, corev1.EnvVar{Name: secretReferenceEnvVar, Value: spec.SecretName})
	}
	return env
}

// CreateWorkload creates the Deployment backing a compute workload. Treats
// "already exists" as success so retries after partial failure converge.
func (g *Gateway) CreateWorkload(ctx context.Context, ns, name string, spec WorkloadSpec) error {
	replicas := spec.DesiredReplicas
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    spec.Labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: spec.Labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: spec.Labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:            "app",
							Image:           spec.Image,
							ImagePullPolicy: corev1.PullAlways,
							Ports: []corev1.ContainerPort{
								{ContainerPort: spec.Port, Protocol: corev1.ProtocolTCP},
							},
							Env:       containerEnv(spec),
							Resources: resourceRequirements(spec),
						},
					},
				},
			},
		},
	}

	_, err := g.clientset.AppsV1().Deployments(ns).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create workload %s/%s: %w", ns, name, err)
	}
	return nil
}

// PatchWorkloadReplicas applies a strategic merge patch to the replica
// count, used by the update handler's replicas path.
func (g *Gateway) PatchWorkloadReplicas(ctx context.Context, ns, name string, n int32) error {
	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, n)
	_, err := g.clientset.AppsV1().Deployments(ns).Patch(ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if apierrors.IsNotFound(err) {
		return err
	}
	if err != nil {
		return fmt.Errorf("patch workload replicas %s/%s: %w", ns, name, err)
	}
	return nil
}

// PatchWorkloadSpec reads the workload, replaces the first container's
// image, env, and resources, and writes the whole object back with Update;
// it does not send a strategic merge patch, and the env list is replaced as
// a whole. Used by the update handler when any of image/env/resources
// changes.
func (g *Gateway) PatchWorkloadSpec(ctx context.Context, ns, name string, spec WorkloadSpec) error {
	existing, err := g.clientset.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get workload %s/%s: %w", ns, name, err)
	}
	if len(existing.Spec.Template.Spec.Containers) == 0 {
		return fmt.Errorf("workload %s/%s has no containers", ns, name)
	}
	existing.Spec.Template.Spec.Containers[0].Image = spec.Image
	existing.Spec.Template.Spec.Containers[0].Env = containerEnv(spec)
	existing.Spec.Template.Spec.Containers[0].Resources = resourceRequirements(spec)

	_, err = g.clientset.AppsV1().Deployments(ns).Update(ctx, existing, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("update workload %s/%s: %w", ns, name, err)
	}
	return nil
}

// DeleteWorkload deletes the workload; a 404 is treated as success.
func (g *Gateway) DeleteWorkload(ctx context.Context, ns, name string) error {
	err := g.clientset.AppsV1().Deployments(ns).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete workload %s/%s: %w", ns, name, err)
	}
	return nil
}

// GetWorkload fetches the live observation of a workload used by the drift
// loop. Returns apierrors.IsNotFound-compatible errors unwrapped so callers
// can branch on 404.
func (g *Gateway) GetWorkload(ctx context.Context, ns, name string) (*WorkloadObservation, error) {
	d, err := g.clientset.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	var desired int32
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	return &WorkloadObservation{
		Namespace:         ns,
		Name:              name,
		DesiredReplicas:   desired,
		ReadyReplicas:     d.Status.ReadyReplicas,
		AvailableReplicas: d.Status.AvailableReplicas,
		UpdatedReplicas:   d.Status.UpdatedReplicas,
		Labels:            d.Labels,
	}, nil
}
