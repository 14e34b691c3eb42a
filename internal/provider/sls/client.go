package sls

import (
	"context"
	"strings"

	aliyunsls "github.com/aliyun/aliyun-log-go-sdk"
)

// Client is the subset of the SLS SDK the provider calls.
// aliyunsls.ClientInterface satisfies it.
type Client interface {
	GetLogs(project, logstore, topic string, from, to int64, queryExp string,
		maxLineNum, offset int64, reverse bool) (*aliyunsls.GetLogsResponse, error)
	CheckLogstoreExist(project, logstore string) (bool, error)
	Close() error
}

type aliyunResponse = aliyunsls.GetLogsResponse

// Credentials authenticate against the SLS endpoint.
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
	SecurityToken   string
}

// NewClient creates an SDK client for endpoint. A missing scheme defaults to https.
func NewClient(endpoint string, creds Credentials) Client {
	return aliyunsls.CreateNormalInterface(normalizeEndpoint(endpoint),
		creds.AccessKeyID, creds.AccessKeySecret, creds.SecurityToken)
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// call runs fn on its own goroutine so that a cancelled context returns
// promptly. The SDK has no context support; an abandoned call finishes in
// the background and its result is dropped.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
