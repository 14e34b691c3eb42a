package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		wantErr     bool
		wantJSON    bool
		debugLogged bool
	}{
		{name: "info text", level: "info", format: "text"},
		{name: "debug json", level: "debug", format: "json", wantJSON: true, debugLogged: true},
		{name: "empty format defaults to text", level: "warn", format: ""},
		{name: "upper case level", level: "DEBUG", format: "text", debugLogged: true},
		{name: "invalid level", level: "verbose", format: "text", wantErr: true},
		{name: "invalid format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(tt.level, tt.format, &buf)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)

			logger.Debug("debug line")
			logger.Error("error line")

			out := buf.String()
			assert.Contains(t, out, "error line")
			assert.Equal(t, tt.debugLogged, bytes.Contains(buf.Bytes(), []byte("debug line")))
			if tt.wantJSON {
				assert.Contains(t, out, `"msg":"error line"`)
			}
		})
	}
}

func TestAnonymizeUser(t *testing.T) {
	assert.Empty(t, AnonymizeUser(""))

	hashed := AnonymizeUser("system:serviceaccount:kube-system:deployment-controller")
	assert.Len(t, hashed, 21) // "user:" + 16 hex chars
	assert.Equal(t, hashed, AnonymizeUser("system:serviceaccount:kube-system:deployment-controller"))
	assert.NotEqual(t, hashed, AnonymizeUser("kubernetes-admin"))
	assert.NotContains(t, hashed, "serviceaccount")
}

func TestSanitizeHost(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{
			name:     "empty host",
			host:     "",
			expected: "<empty>",
		},
		{
			name:     "hostname without IP",
			host:     "https://cn-hangzhou.log.aliyuncs.com",
			expected: "https://cn-hangzhou.log.aliyuncs.com",
		},
		{
			name:     "IP address URL",
			host:     "http://192.168.1.100:3100",
			expected: "http://<redacted-ip>:3100",
		},
		{
			name:     "bare IP address",
			host:     "192.168.1.100",
			expected: "<redacted-ip>",
		},
		{
			name:     "IP with port no scheme",
			host:     "10.0.0.1:3100",
			expected: "<redacted-ip>:3100",
		},
		{
			name:     "IPv6 address URL with brackets",
			host:     "https://[2001:db8::1]:3100",
			expected: "https://<redacted-ip>:3100",
		},
		{
			name:     "bare IPv6 address",
			host:     "2001:db8::1",
			expected: "<redacted-ip>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeHost(tt.host))
		})
	}
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "<empty>", RedactSecret(""))
	assert.Equal(t, "[secret:3 chars]", RedactSecret("abc"))

	secret := "LTAI5tExampleAccessKey" //nolint:gosec // not a real credential
	redacted := RedactSecret(secret)
	assert.NotContains(t, redacted, "LTAI")
	assert.Equal(t, fmt.Sprintf("[secret:%d chars]", len(secret)), redacted)
}

func TestSlogAttributes(t *testing.T) {
	t.Run("Unit", func(t *testing.T) {
		attr := Unit("cn-shanghai")
		assert.Equal(t, KeyUnit, attr.Key)
		assert.Equal(t, "cn-shanghai", attr.Value.String())
	})

	t.Run("Provider", func(t *testing.T) {
		attr := Provider("loki")
		assert.Equal(t, KeyProvider, attr.Key)
		assert.Equal(t, "loki", attr.Value.String())
	})

	t.Run("ResourceType joins values", func(t *testing.T) {
		attr := ResourceType([]string{"pods", "secrets"})
		assert.Equal(t, KeyResourceType, attr.Key)
		assert.Equal(t, "pods,secrets", attr.Value.String())
	})

	t.Run("Count", func(t *testing.T) {
		attr := Count(7)
		assert.Equal(t, KeyCount, attr.Key)
		assert.Equal(t, int64(7), attr.Value.Int64())
	})

	t.Run("Duration", func(t *testing.T) {
		attr := Duration(2 * time.Second)
		assert.Equal(t, KeyDuration, attr.Key)
		assert.Equal(t, 2*time.Second, attr.Value.Duration())
	})

	t.Run("Err with nil", func(t *testing.T) {
		attr := Err(nil)
		assert.Equal(t, KeyError, attr.Key)
		assert.Equal(t, "", attr.Value.String())
	})

	t.Run("SanitizedErr with IP in error message", func(t *testing.T) {
		attr := SanitizedErr(fmt.Errorf("dial tcp 10.1.2.3:3100: connection refused"))
		assert.NotContains(t, attr.Value.String(), "10.1.2.3")
		assert.Contains(t, attr.Value.String(), "connection refused")
	})

	t.Run("UserHash", func(t *testing.T) {
		attr := UserHash("kubernetes-admin")
		assert.Equal(t, KeyUserHash, attr.Key)
		assert.Contains(t, attr.Value.String(), "user:")
	})

	t.Run("Host", func(t *testing.T) {
		attr := Host("http://192.168.1.1:3100")
		assert.Equal(t, KeyHost, attr.Key)
		assert.NotContains(t, attr.Value.String(), "192.168")
	})
}

func TestWithClusterLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithCluster(logger, "prod-cluster").Info("test message")

	assert.Contains(t, buf.String(), `"cluster":"prod-cluster"`)
}

func TestWithOperationLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithOperation(logger, "audit.query").Info("test message")

	assert.Contains(t, buf.String(), `"operation":"audit.query"`)
}
