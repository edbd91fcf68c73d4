package authhttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/guarzo/authpipe/common"
)

// Refresher is the coordinator surface the expiry layer depends on.
type Refresher interface {
	RefreshOrWait(ctx context.Context, stale string, trigger error) (string, error)
}

// ExpiryOption configures NewExpiryInterceptor.
type ExpiryOption func(*expiryTransport)

// WithExpiryCheck replaces the default "status is 401" detection.
func WithExpiryCheck(fn func(*http.Response) bool) ExpiryOption {
	return func(t *expiryTransport) {
		if fn != nil {
			t.expired = fn
		}
	}
}

func WithExpiryLogger(l common.Logger) ExpiryOption {
	return func(t *expiryTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithExpiryMetrics(m *common.Metrics) ExpiryOption {
	return func(t *expiryTransport) { t.metrics = m }
}

// IsUnauthorized is the default expiry check.
func IsUnauthorized(resp *http.Response) bool {
	return resp.StatusCode == http.StatusUnauthorized
}

// NewExpiryInterceptor replays a request once after refreshing its credential
// when the response reports expiry. It must wrap the auth layer so the replay
// is re-authenticated.
//
// Responses other than expiry, transport errors, expiry of a request sent
// without a credential, and expiry of the replay itself are returned as-is.
// A failed refresh is returned as the error instead of the expiry response.
func NewExpiryInterceptor(r Refresher, opts ...ExpiryOption) common.Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		t := &expiryTransport{
			next:      next,
			refresher: r,
			expired:   IsUnauthorized,
			logger:    common.NopLogger(),
		}
		for _, opt := range opts {
			opt(t)
		}
		return t
	}
}

type expiryTransport struct {
	next      http.RoundTripper
	refresher Refresher
	expired   func(*http.Response) bool
	logger    common.Logger
	metrics   *common.Metrics
}

func (t *expiryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	n := 0
	if prev := attemptFrom(ctx); prev != nil {
		n = prev.n
	}

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	first := &attempt{n: n}
	resp, err := t.next.RoundTrip(req.WithContext(withAttempt(ctx, first)))
	if err != nil || !t.expired(resp) {
		return resp, err
	}
	if first.n > 0 || first.sent == "" {
		return resp, nil
	}

	trigger := common.NewHTTPError(resp)
	id := req.Header.Get(RequestIDHeader)
	t.logger.Debugf("request %s %s [%s] rejected with %d, refreshing", req.Method, req.URL.Path, id, trigger.StatusCode)

	access, err := t.refresher.RefreshOrWait(ctx, first.sent, trigger)
	if err != nil {
		return nil, err
	}

	retry, err := rebuild(withAttempt(ctx, &attempt{n: first.n + 1, override: access}), req)
	if err != nil {
		return nil, err
	}
	t.metrics.IncRetried()
	t.logger.Debugf("replaying %s %s [%s] with refreshed credential", req.Method, req.URL.Path, id)
	return t.next.RoundTrip(retry)
}

// replayable makes sure req's body can be produced twice. Bodies without
// GetBody are read once into memory.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.ContentLength = int64(len(data))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	clone.Body, _ = clone.GetBody()
	return clone, nil
}

func rebuild(ctx context.Context, req *http.Request) (*http.Request, error) {
	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}
	return retry, nil
}
