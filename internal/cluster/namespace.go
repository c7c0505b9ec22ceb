package cluster

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/poddle/compute/internal/domain"
)

// EnsureNamespace is idempotent: GET, and on 404 POST with the owning
// user's id as a label. A conflict from a racing creator (another message
// for the same user processed concurrently) is treated as success.
func (g *Gateway) EnsureNamespace(ctx context.Context, userID uuid.UUID) (string, error) {
	name := domain.Namespace(userID)

	if _, err := g.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{}); err == nil {
		return name, nil
	} else if !apierrors.IsNotFound(err) {
		return "", err
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{"user-id": userID.String()},
		},
	}
	_, err := g.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return "", err
	}

	g.log.Info("namespace ensured", zap.String("namespace", name), zap.String("user_id", userID.String()))
	return name, nil
}
