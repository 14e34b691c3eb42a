package k8s

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKubeconfig = `apiVersion: v1
kind: Config
current-context: dev
clusters:
- name: dev
  cluster:
    server: https://dev.example.com:6443
- name: prod
  cluster:
    server: https://prod.example.com:6443
contexts:
- name: dev
  context:
    cluster: dev
    user: admin
- name: prod
  context:
    cluster: prod
    user: admin
users:
- name: admin
  user:
    token: abc
`

func writeKubeconfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))
	return path
}

func TestRESTConfig_Kubeconfig(t *testing.T) {
	path := writeKubeconfig(t)

	tests := []struct {
		name     string
		context  string
		wantHost string
	}{
		{name: "current context", wantHost: "https://dev.example.com:6443"},
		{name: "explicit context", context: "prod", wantHost: "https://prod.example.com:6443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := RESTConfig(ClientConfig{KubeconfigPath: path, Context: tt.context})
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, cfg.Host)
			assert.Equal(t, float32(DefaultQPSLimit), cfg.QPS)
			assert.Equal(t, DefaultBurstLimit, cfg.Burst)
			assert.Equal(t, DefaultTimeout, cfg.Timeout)
		})
	}
}

func TestRESTConfig_Overrides(t *testing.T) {
	cfg, err := RESTConfig(ClientConfig{
		KubeconfigPath: writeKubeconfig(t),
		QPSLimit:       5,
		BurstLimit:     7,
		Timeout:        time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, float32(5), cfg.QPS)
	assert.Equal(t, 7, cfg.Burst)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestRESTConfig_Errors(t *testing.T) {
	t.Run("unknown context", func(t *testing.T) {
		_, err := RESTConfig(ClientConfig{KubeconfigPath: writeKubeconfig(t), Context: "staging"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `context "staging"`)
	})

	t.Run("not in cluster", func(t *testing.T) {
		t.Setenv("KUBERNETES_SERVICE_HOST", "")
		t.Setenv("KUBERNETES_SERVICE_PORT", "")
		_, err := RESTConfig(ClientConfig{InCluster: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "in-cluster")
	})
}

func TestNewClientset(t *testing.T) {
	cs, err := NewClientset(ClientConfig{KubeconfigPath: writeKubeconfig(t)})
	require.NoError(t, err)
	assert.NotNil(t, cs)
}

func TestContextName(t *testing.T) {
	assert.Equal(t, InClusterContext, ClientConfig{InCluster: true}.ContextName())
	assert.Equal(t, "prod", ClientConfig{Context: "prod"}.ContextName())
	assert.Equal(t, "current", ClientConfig{}.ContextName())
}
