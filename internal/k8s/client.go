package k8s

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset builds a Kubernetes clientset for leader election.
// In-cluster config is tried first; outside a cluster it falls back to
// kubeConfigPath, or the default kubeconfig location when that is empty.
func NewClientset(kubeConfigPath string) (kubernetes.Interface, error) {
	config, err := restConfig(kubeConfigPath)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create K8s clientset: %w", err)
	}
	return clientset, nil
}

func restConfig(kubeConfigPath string) (*rest.Config, error) {
	if kubeConfigPath == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
		kubeConfigPath = clientcmd.RecommendedHomeFile
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubeconfig: %w", err)
	}
	return config, nil
}
