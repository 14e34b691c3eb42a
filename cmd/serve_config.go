package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/server"
)

// Environment variables read when the matching flag is not set.
const (
	envConfigPath           = "KUBE_AUDIT_CONFIG"
	envUnitTimeout          = "KUBE_AUDIT_UNIT_TIMEOUT"
	envMaxConcurrency       = "KUBE_AUDIT_MAX_CONCURRENCY"
	envFailOnAllUnitsFailed = "KUBE_AUDIT_FAIL_ON_ALL_UNITS_FAILED"
	envLogLevel             = "KUBE_AUDIT_LOG_LEVEL"
	envLogFormat            = "KUBE_AUDIT_LOG_FORMAT"
	envMaxResponseBytes     = "KUBE_AUDIT_MAX_RESPONSE_BYTES"
	envEnableHSTS           = "ENABLE_HSTS"
)

// Defaults for the serve command.
const (
	defaultConfigPath  = "config.yaml"
	defaultUnitTimeout = 30 * time.Second
)

// ServeConfig holds all configuration for the serve command.
type ServeConfig struct {
	// ConfigPath is the cluster binding document.
	ConfigPath string

	// Transport settings
	Transport string
	HTTPAddr  string

	// Endpoint paths
	SSEEndpoint     string
	MessageEndpoint string
	HTTPEndpoint    string

	// Fan-out settings
	UnitTimeout          time.Duration
	MaxConcurrency       int
	FailOnAllUnitsFailed bool

	// Logging
	LogLevel  string
	LogFormat string

	// EnableHSTS adds Strict-Transport-Security on HTTP transports.
	EnableHSTS bool

	// Output post-processing for tool results
	Output server.OutputConfig
}

// Validate checks the values that cannot be corrected silently.
func (c *ServeConfig) Validate() error {
	switch c.Transport {
	case transportStdio, transportSSE, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", c.Transport)
	}
	if c.ConfigPath == "" {
		return fmt.Errorf("--config is required (or set %s)", envConfigPath)
	}
	if c.UnitTimeout <= 0 {
		return fmt.Errorf("--unit-timeout must be positive, got %v", c.UnitTimeout)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("--max-concurrency must not be negative, got %d", c.MaxConcurrency)
	}
	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unsupported log format: %s (supported: text, json)", c.LogFormat)
	}
	return nil
}

// loadServeEnvVars fills settings from the environment. Environment
// variables only override flag values when the flag was not explicitly set.
func loadServeEnvVars(cmd *cobra.Command, config *ServeConfig) {
	changed := func(name string) bool {
		return cmd != nil && cmd.Flags().Changed(name)
	}

	if !changed("config") {
		loadEnvIfSet(&config.ConfigPath, envConfigPath)
	}
	if !changed("unit-timeout") {
		if d, ok := parseDurationEnv(os.Getenv(envUnitTimeout), envUnitTimeout); ok {
			config.UnitTimeout = d
		}
	}
	if !changed("max-concurrency") {
		if n, ok := parseIntEnv(os.Getenv(envMaxConcurrency), envMaxConcurrency); ok {
			config.MaxConcurrency = n
		}
	}
	if !changed("fail-on-all-units-failed") {
		if b, ok := parseBoolEnv(os.Getenv(envFailOnAllUnitsFailed), envFailOnAllUnitsFailed); ok {
			config.FailOnAllUnitsFailed = b
		}
	}
	if !changed("log-level") {
		loadEnvIfSet(&config.LogLevel, envLogLevel)
	}
	if !changed("log-format") {
		loadEnvIfSet(&config.LogFormat, envLogFormat)
	}
	if !changed("max-response-bytes") {
		if n, ok := parseIntEnv(os.Getenv(envMaxResponseBytes), envMaxResponseBytes); ok {
			config.Output.MaxResponseBytes = n
		}
	}
	if !changed("enable-hsts") {
		config.EnableHSTS = config.EnableHSTS || os.Getenv(envEnableHSTS) == envValueTrue
	}
}

// loadEnvIfSet overwrites target with the environment variable when it is set.
func loadEnvIfSet(target *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*target = v
	}
}

// parseBoolEnv parses a boolean from an environment variable value.
// Returns the parsed bool and true if successful, or false and false if parsing fails.
func parseBoolEnv(value, envName string) (bool, bool) {
	if value == "" {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		warnInvalidEnv(envName, value, err)
		return false, false
	}
	return b, true
}
