package discovery

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// KubernetesRegistry resolves cluster membership from the endpoints of a
// headless service: every ready pod address becomes a peer. The node
// processes are expected to run behind that service with a named or
// well-known port.
type KubernetesRegistry struct {
	client    kubernetes.Interface
	namespace string
	service   string
	port      int
}

// NewKubernetesRegistry builds a registry using the in-cluster service
// account config.
func NewKubernetesRegistry(namespace, service string, port int) (*KubernetesRegistry, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	return NewKubernetesRegistryWithClient(client, namespace, service, port), nil
}

// NewKubernetesRegistryWithClient wires an explicit client; used by tests
// and by callers with out-of-cluster kubeconfigs.
func NewKubernetesRegistryWithClient(client kubernetes.Interface, namespace, service string, port int) *KubernetesRegistry {
	return &KubernetesRegistry{
		client:    client,
		namespace: namespace,
		service:   service,
		port:      port,
	}
}

// ListPeers returns every ready endpoint address of the service.
func (r *KubernetesRegistry) ListPeers(ctx context.Context) ([]Peer, error) {
	endpoints, err := r.client.CoreV1().Endpoints(r.namespace).Get(ctx, r.service, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("list endpoints for %s/%s: %w", r.namespace, r.service, err)
	}

	var peers []Peer
	for _, subset := range endpoints.Subsets {
		port := r.port
		if port == 0 && len(subset.Ports) > 0 {
			port = int(subset.Ports[0].Port)
		}
		for _, addr := range subset.Addresses {
			peers = append(peers, Peer{Host: addr.IP, Port: port})
		}
	}
	return peers, nil
}

var _ Registry = (*KubernetesRegistry)(nil)
