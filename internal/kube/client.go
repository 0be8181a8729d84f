package kube

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps a Kubernetes clientset for the deployer's cluster.
type Client struct {
	cli kubernetes.Interface
}

// NewClient builds a client from a kubeconfig path. An empty path falls
// back to the default loading rules (KUBECONFIG, ~/.kube/config).
func NewClient(kubeconfigPath string) (*Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	cli, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes client: %w", err)
	}

	return &Client{cli: cli}, nil
}

// NewClientFromInterface wraps an existing clientset, used in tests with
// the fake clientset.
func NewClientFromInterface(cli kubernetes.Interface) *Client {
	return &Client{cli: cli}
}
