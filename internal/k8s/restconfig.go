package k8s

import (
	"fmt"
	"log/slog"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientConfig selects and tunes the API server connection.
type ClientConfig struct {
	// KubeconfigPath overrides the default loading rules ($KUBECONFIG, ~/.kube/config).
	KubeconfigPath string
	// Context selects a kubeconfig context; empty uses the current one.
	Context string
	// InCluster uses the pod's service account instead of a kubeconfig.
	InCluster bool

	QPSLimit   float32
	BurstLimit int
	Timeout    time.Duration

	Logger *slog.Logger
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.QPSLimit == 0 {
		c.QPSLimit = DefaultQPSLimit
	}
	if c.BurstLimit == 0 {
		c.BurstLimit = DefaultBurstLimit
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ContextName returns the identity the config resolves to, for logs.
func (c ClientConfig) ContextName() string {
	switch {
	case c.InCluster:
		return InClusterContext
	case c.Context != "":
		return c.Context
	default:
		return "current"
	}
}

// RESTConfig builds a rest.Config with rate limits and timeout applied.
func RESTConfig(cfg ClientConfig) (*rest.Config, error) {
	cfg = cfg.withDefaults()

	var (
		restConfig *rest.Config
		err        error
	)
	if cfg.InCluster {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster rest config: %w", err)
		}
	} else {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if cfg.KubeconfigPath != "" {
			loadingRules.ExplicitPath = cfg.KubeconfigPath
		}
		contextConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules,
			&clientcmd.ConfigOverrides{CurrentContext: cfg.Context},
		)
		restConfig, err = contextConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create rest config for context %q: %w", cfg.ContextName(), err)
		}
	}

	restConfig.QPS = cfg.QPSLimit
	restConfig.Burst = cfg.BurstLimit
	restConfig.Timeout = cfg.Timeout

	cfg.Logger.Debug("Built REST config",
		"context", cfg.ContextName(),
		"qps", cfg.QPSLimit,
		"burst", cfg.BurstLimit,
		"timeout", cfg.Timeout)

	return restConfig, nil
}

// NewClientset returns a typed clientset for cfg.
func NewClientset(cfg ClientConfig) (kubernetes.Interface, error) {
	restConfig, err := RESTConfig(cfg)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}
