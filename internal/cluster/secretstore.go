package cluster

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var vaultStaticSecretGVR = schema.GroupVersionResource{
	Group: "secrets.hashicorp.com", Version: "v1beta1", Resource: "vaultstaticsecrets",
}

// BindSecretStore creates a VaultStaticSecret object that the Vault Secrets
// Operator reconciles into a cluster-local Secret named `name`, sourced
// from `externalPath` in the configured KV mount, refreshed on the given
// interval, and triggering a rolling restart of restartTarget whenever the
// upstream value changes. Treats "already exists" as success.
func (g *Gateway) BindSecretStore(ctx context.Context, ns, name, externalPath, refreshAfter, restartTarget string) error {
	obj := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "secrets.hashicorp.com/v1beta1",
			"kind":       "VaultStaticSecret",
			"metadata": map[string]interface{}{
				"name":      name,
				"namespace": ns,
			},
			"spec": map[string]interface{}{
				"vaultAuthRef": g.cfg.VaultAuthName,
				"mount":        g.cfg.VaultKVMount,
				"type":         "kv-v2",
				"path":         externalPath,
				"refreshAfter": refreshAfter,
				"destination": map[string]interface{}{
					"create": true,
					"name":   name,
				},
				"rolloutRestartTargets": []interface{}{
					map[string]interface{}{
						"kind": "Deployment",
						"name": restartTarget,
					},
				},
			},
		},
	}

	_, err := g.dynamic.Resource(vaultStaticSecretGVR).Namespace(ns).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("bind secret store %s/%s: %w", ns, name, err)
	}
	return nil
}

// DeleteSecretStore removes the VaultStaticSecret object; a 404 is treated
// as success.
func (g *Gateway) DeleteSecretStore(ctx context.Context, ns, name string) error {
	err := g.dynamic.Resource(vaultStaticSecretGVR).Namespace(ns).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete secret store %s/%s: %w", ns, name, err)
	}
	return nil
}
