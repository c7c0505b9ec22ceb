package cluster

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/poddle/compute/internal/domain"
)

func newTestGateway(t *testing.T) (*Gateway, *fake.Clientset) {
	cs := fake.NewSimpleClientset()
	dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
	cfg := Config{
		Domain:                    "poddle.uz",
		TraefikNamespace:          "traefik",
		ClusterIssuerName:         "letsencrypt-prod",
		WildcardCertificateName:   "poddle-wildcard",
		WildcardCertificateSecret: "poddle-wildcard-tls",
		EntryPoints:               []string{"websecure"},
		VaultAuthName:             "vault-auth",
		VaultKVMount:              "kvv2",
		LabelSelector:             "managed-by=poddle",
	}
	return New(cs, dyn, cfg, zap.NewNop()), cs
}

func TestEnsureNamespace_CreatesWhenAbsent(t *testing.T) {
	g, cs := newTestGateway(t)
	userID := uuid.New()

	ns, err := g.EnsureNamespace(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, domain.Namespace(userID), ns)

	got, err := cs.CoreV1().Namespaces().Get(context.Background(), ns, metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, userID.String(), got.Labels["user-id"])
}

func TestEnsureNamespace_IdempotentWhenPresent(t *testing.T) {
	g, cs := newTestGateway(t)
	userID := uuid.New()
	name := domain.Namespace(userID)

	_, err := cs.CoreV1().Namespaces().Create(context.Background(), &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	ns, err := g.EnsureNamespace(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, name, ns)
}

func TestCreateWorkload_TreatsAlreadyExistsAsSuccess(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	spec := WorkloadSpec{
		Image: "nginx:latest", Port: 8080, DesiredReplicas: 2,
		CPURequestMillis: 250, CPULimitMillis: 500, MemoryRequestMB: 256, MemoryLimitMB: 512,
		Labels: map[string]string{"managed-by": "poddle"},
	}
	require.NoError(t, g.CreateWorkload(ctx, "user-abc", "app-def", spec))
	require.NoError(t, g.CreateWorkload(ctx, "user-abc", "app-def", spec))
}

func TestDeleteWorkload_TreatsNotFoundAsSuccess(t *testing.T) {
	g, _ := newTestGateway(t)
	err := g.DeleteWorkload(context.Background(), "user-abc", "app-missing")
	require.NoError(t, err)
}

func TestGetWorkload_ReturnsNotFoundForDriftLoop(t *testing.T) {
	g, _ := newTestGateway(t)
	_, err := g.GetWorkload(context.Background(), "user-abc", "app-missing")
	require.Error(t, err)
	require.True(t, apierrors.IsNotFound(err))
}

func TestPatchWorkloadReplicas(t *testing.T) {
	g, cs := newTestGateway(t)
	ctx := context.Background()
	replicas := int32(1)
	_, err := cs.AppsV1().Deployments("user-abc").Create(ctx, &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "app-def", Namespace: "user-abc"},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"a": "b"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"a": "b"}},
				Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "app", Image: "x"}}},
			},
		},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, g.PatchWorkloadReplicas(ctx, "user-abc", "app-def", 5))

	got, err := cs.AppsV1().Deployments("user-abc").Get(ctx, "app-def", metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, int32(5), *got.Spec.Replicas)
}
