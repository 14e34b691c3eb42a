// Package k8s builds Kubernetes API clients for providers that read from a
// live cluster.
//
// A ClientConfig selects either a kubeconfig context or the in-cluster
// service account, and applies client-side rate limits so that audit
// queries never starve the API server:
//
//	cs, err := k8s.NewClientset(k8s.ClientConfig{
//		KubeconfigPath: "/etc/kube/config",
//		Context:        "production",
//	})
package k8s
