// Package cluster implements ClusterGateway: all reads and writes against
// the cluster API server, encapsulating both the typed client-go clientset
// and the dynamic client needed for the Traefik IngressRoute and Vault
// Secrets Operator CRDs, for which no typed Go client exists in this stack.
package cluster

import (
	"fmt"

	"go.uber.org/zap"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Config is the gateway's static configuration: how to reach the cluster,
// and the naming conventions for the ingress/secret-store integrations it
// drives.
type Config struct {
	KubeconfigPath string
	InCluster      bool

	Domain                    string
	TraefikNamespace          string
	IngressClassName          string
	EntryPoints               []string
	ClusterIssuerName         string
	WildcardCertificateName   string
	WildcardCertificateSecret string

	VaultConnectionName string
	VaultAuthName       string
	VaultKVMount        string

	LabelSelector string
}

// Gateway is the ClusterGateway. It owns no state beyond its authenticated
// clients.
type Gateway struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface
	cfg       Config
	log       *zap.Logger
}

// New builds a Gateway from explicit clients, grounded on the teacher's
// NewKubernetesRepository constructors that accept an already-built
// clientset rather than constructing one themselves — this lets tests
// inject k8s.io/client-go/kubernetes/fake.
func New(clientset kubernetes.Interface, dyn dynamic.Interface, cfg Config, log *zap.Logger) *Gateway {
	return &Gateway{clientset: clientset, dynamic: dyn, cfg: cfg, log: log}
}

// LoadRestConfig resolves the rest.Config for the configured cluster,
// in-cluster or from a kubeconfig file.
func LoadRestConfig(cfg Config) (*rest.Config, error) {
	if cfg.InCluster {
		restCfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config: %w", err)
		}
		return restCfg, nil
	}
	restCfg, err := clientcmd.BuildConfigFromFlags("", cfg.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("kubeconfig %q: %w", cfg.KubeconfigPath, err)
	}
	return restCfg, nil
}

// NewClients builds the typed and dynamic clientsets every binary needs to
// construct a Gateway, from a resolved rest.Config.
func NewClients(restCfg *rest.Config) (kubernetes.Interface, dynamic.Interface, error) {
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build dynamic client: %w", err)
	}
	return clientset, dyn, nil
}
