package cluster

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/poddle/compute/internal/domain"
)

var clusterIssuerGVR = schema.GroupVersionResource{
	Group: "cert-manager.io", Version: "v1", Resource: "clusterissuers",
}

var certificateGVR = schema.GroupVersionResource{
	Group: "cert-manager.io", Version: "v1", Resource: "certificates",
}

// Preflight asserts the configured cluster-issuer and wildcard certificate
// exist before the Provisioner starts consuming work items. It is a fatal
// configuration error if either is missing — called once at startup.
func (g *Gateway) Preflight(ctx context.Context) error {
	_, err := g.dynamic.Resource(clusterIssuerGVR).Get(ctx, g.cfg.ClusterIssuerName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return &domain.ConfigError{Reason: fmt.Sprintf("ClusterIssuer %q is missing", g.cfg.ClusterIssuerName)}
	}
	if err != nil {
		return fmt.Errorf("checking ClusterIssuer %q: %w", g.cfg.ClusterIssuerName, err)
	}
	g.log.Info("preflight: cluster-issuer found", zap.String("cluster_issuer", g.cfg.ClusterIssuerName))

	_, err = g.dynamic.Resource(certificateGVR).Namespace(g.cfg.TraefikNamespace).
		Get(ctx, g.cfg.WildcardCertificateName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return &domain.ConfigError{Reason: fmt.Sprintf(
			"wildcard Certificate %q is missing in namespace %q", g.cfg.WildcardCertificateName, g.cfg.TraefikNamespace)}
	}
	if err != nil {
		return fmt.Errorf("checking wildcard certificate %q: %w", g.cfg.WildcardCertificateName, err)
	}
	g.log.Info("preflight: wildcard certificate found", zap.String("certificate", g.cfg.WildcardCertificateName))

	g.log.Info("preflight checks passed")
	return nil
}
