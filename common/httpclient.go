package common

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody caps how much of an error response body is kept on HTTPError.
const maxErrorBody = 64 << 10

// HTTPError is a custom error that captures unexpected status codes and response bodies.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// NewHTTPError drains and closes resp.Body into an HTTPError.
func NewHTTPError(resp *http.Response) *HTTPError {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
	}
	return &HTTPError{StatusCode: resp.StatusCode, Body: body}
}

// RoundTripperFunc adapts a plain function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps a transport with additional request/response behaviour.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Chain composes middlewares around base. The first middleware is the
// outermost: Chain(t, a, b) == a(b(t)).
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}
	return rt
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// DefaultTimeout is applied when NewHttpClient is given a non-positive timeout.
const DefaultTimeout = 10 * time.Second

// NewHttpClient returns base configured with a custom User-Agent and timeout.
// A nil base gets a fresh *http.Client on the default transport.
func NewHttpClient(userAgent string, base *http.Client, timeout time.Duration) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if base.Transport == nil {
		base.Transport = http.DefaultTransport
	}
	if userAgent != "" {
		base.Transport = &userAgentRoundTripper{
			Wrapped:   base.Transport,
			UserAgent: userAgent,
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base.Timeout = timeout
	return base
}
