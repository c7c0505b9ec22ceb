package cluster

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var ingressRouteGVR = schema.GroupVersionResource{
	Group: "traefik.io", Version: "v1alpha1", Resource: "ingressroutes",
}

// CreateRoute creates a Traefik IngressRoute matching requests for the
// deployment's subdomain and/or custom domain, forwarding to the named
// service and terminating TLS with the shared wildcard certificate secret.
// Treats "already exists" as success.
func (g *Gateway) CreateRoute(ctx context.Context, ns, name string, hosts RouteHosts, labels map[string]string) error {
	var routes []interface{}
	if hosts.Subdomain != "" {
		routes = append(routes, routeRule(fmt.Sprintf("Host(`%s.%s`)", hosts.Subdomain, g.cfg.Domain), name))
	}
	if hosts.CustomDomain != "" {
		routes = append(routes, routeRule(fmt.Sprintf("Host(`%s`)", hosts.CustomDomain), name))
	}

	entryPoints := make([]interface{}, 0, len(g.cfg.EntryPoints))
	for _, ep := range g.cfg.EntryPoints {
		entryPoints = append(entryPoints, ep)
	}

	obj := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "traefik.io/v1alpha1",
			"kind":       "IngressRoute",
			"metadata": map[string]interface{}{
				"name":      name,
				"namespace": ns,
				"labels":    toInterfaceMap(labels),
			},
			"spec": map[string]interface{}{
				"entryPoints": entryPoints,
				"routes":      routes,
				"tls": map[string]interface{}{
					"certResolver": g.cfg.ClusterIssuerName,
					"secretName":   g.cfg.WildcardCertificateSecret,
				},
			},
		},
	}

	_, err := g.dynamic.Resource(ingressRouteGVR).Namespace(ns).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create route %s/%s: %w", ns, name, err)
	}
	return nil
}

// DeleteRoute deletes the IngressRoute; a 404 is treated as success.
func (g *Gateway) DeleteRoute(ctx context.Context, ns, name string) error {
	err := g.dynamic.Resource(ingressRouteGVR).Namespace(ns).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete route %s/%s: %w", ns, name, err)
	}
	return nil
}

func routeRule(match, serviceName string) map[string]interface{} {
	return map[string]interface{}{
		"match": match,
		"kind":  "Rule",
		"services": []interface{}{
			map[string]interface{}{"name": serviceName, "port": int64(80)},
		},
	}
}

func toInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
