package k8s

import "time"

const (
	// Default client-side rate limits for API calls made by providers.
	DefaultQPSLimit   = 20.0
	DefaultBurstLimit = 30
	DefaultTimeout    = 30 * time.Second

	// InClusterContext names the service account identity in logs.
	InClusterContext = "in-cluster"
)
