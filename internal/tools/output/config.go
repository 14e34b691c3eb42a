package output

// Response size limits.
const (
	// DefaultMaxResponseBytes is the default cap on the encoded entries (512KB).
	DefaultMaxResponseBytes = 512 * 1024

	// AbsoluteMaxResponseBytes caps MaxResponseBytes regardless of configuration (2MB).
	AbsoluteMaxResponseBytes = 2 * 1024 * 1024
)

// Config controls how audit entries are post-processed before they are
// returned to the caller.
type Config struct {
	// MaxResponseBytes bounds the JSON size of the returned entries.
	// Default: 512KB, Absolute max: 2MB
	MaxResponseBytes int `json:"maxResponseBytes" yaml:"maxResponseBytes"`

	// SlimOutput removes ExcludedFields from embedded Kubernetes objects.
	SlimOutput bool `json:"slimOutput" yaml:"slimOutput"`

	// MaskSecrets replaces Secret payloads in request and response
	// objects with RedactedValue. It should rarely be disabled.
	MaskSecrets bool `json:"maskSecrets" yaml:"maskSecrets"`

	// ExcludedFields are dot paths relative to an embedded object.
	ExcludedFields []string `json:"excludedFields,omitempty" yaml:"excludedFields,omitempty"`
}

// DefaultConfig returns the configuration used by the audit tools.
func DefaultConfig() *Config {
	return &Config{
		MaxResponseBytes: DefaultMaxResponseBytes,
		SlimOutput:       true,
		MaskSecrets:      true,
		ExcludedFields:   DefaultExcludedFields(),
	}
}

// DefaultExcludedFields returns the fields dropped from embedded objects in slim mode.
func DefaultExcludedFields() []string {
	return []string{
		"metadata.managedFields",
		"metadata.annotations.kubectl.kubernetes.io/last-applied-configuration",
		"metadata.ownerReferences",
		"metadata.selfLink",
		"status.conditions[*].lastProbeTime",
		"status.conditions[*].lastHeartbeatTime",
	}
}

// Validate returns a copy with out-of-range values replaced or capped.
func (c *Config) Validate() *Config {
	validated := *c

	if validated.MaxResponseBytes <= 0 {
		validated.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if validated.MaxResponseBytes > AbsoluteMaxResponseBytes {
		validated.MaxResponseBytes = AbsoluteMaxResponseBytes
	}
	if validated.SlimOutput && len(validated.ExcludedFields) == 0 {
		validated.ExcludedFields = DefaultExcludedFields()
	}
	validated.ExcludedFields = append([]string(nil), validated.ExcludedFields...)

	return &validated
}

// TruncationWarning reports entries dropped to respect MaxResponseBytes.
type TruncationWarning struct {
	Shown   int    `json:"shown"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}
