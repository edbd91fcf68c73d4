// Package authhttp is the authenticated HTTP pipeline:
//
//	send = requestID(expiry(auth(do)))
//
// The auth layer attaches the stored access credential, the expiry layer
// turns a 401 into one shared refresh plus a single replay, and Client is
// the façade the rest of an application calls.
//
// do is http.Client.Do, so the layers see one logical request per attempt.
// Redirects are followed inside do, which keeps the retry marker intact and
// lets net/http drop Authorization on redirects to another host.
package authhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
	"github.com/guarzo/authpipe/modules/refresh"
)

// RequestIDHeader carries a per-request id, kept across the replay.
const RequestIDHeader = "X-Request-ID"

// TokenStore is everything the client needs from the credential store.
type TokenStore interface {
	refresh.TokenStore
	Session(ctx context.Context) (model.Session, error)
}

// Options configures New. Store and Auth are required.
type Options struct {
	// BaseURL is resolved against relative endpoints in DoRequest/GetJSON/PostJSON.
	BaseURL string
	// Transport sends the request once it is authenticated; nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
	UserAgent string
	Timeout   time.Duration

	Store TokenStore
	Auth  common.AuthClient
	// OnLogout is signalled once per unrecoverable refresh failure.
	OnLogout refresh.LogoutFunc

	AuthScheme       string
	RefreshTimeout   time.Duration
	ProactiveRefresh bool
	ExpiryCheck      func(*http.Response) bool

	Logger  common.Logger
	Metrics *common.Metrics
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	send        http.RoundTripper
	store       TokenStore
	coordinator *refresh.Coordinator
	logger      common.Logger
}

// New composes the pipeline described in the package doc.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("authhttp: token store is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("authhttp: auth client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = common.NopLogger()
	}

	coord := refresh.NewCoordinator(opts.Store, opts.Auth,
		refresh.WithLogout(opts.OnLogout),
		refresh.WithLogger(logger),
		refresh.WithMetrics(opts.Metrics),
		refresh.WithTimeout(opts.RefreshTimeout),
	)

	var src CredentialSource = StoreSource(opts.Store)
	if opts.ProactiveRefresh {
		src = coord
	}

	hc := common.NewHttpClient(opts.UserAgent, &http.Client{Transport: opts.Transport}, opts.Timeout)
	send := common.Chain(do(hc),
		requestID,
		NewExpiryInterceptor(coord,
			WithExpiryCheck(opts.ExpiryCheck),
			WithExpiryLogger(logger),
			WithExpiryMetrics(opts.Metrics),
		),
		NewAuthInterceptor(src, opts.AuthScheme),
	)

	return &Client{
		baseURL:     opts.BaseURL,
		send:        send,
		store:       opts.Store,
		coordinator: coord,
		logger:      logger,
	}, nil
}

// Send is the single entry point for authenticated calls. Refresh and replay
// are invisible to the caller except through the returned error:
// errors.Is(err, refresh.ErrRefreshFailed) means the session has ended.
func (c *Client) Send(req *http.Request) (*http.Response, error) {
	return c.send.RoundTrip(req)
}

// Coordinator returns the refresh coordinator shared by all requests.
func (c *Client) Coordinator() *refresh.Coordinator {
	return c.coordinator
}

// Login stores the pair obtained by the login flow.
func (c *Client) Login(ctx context.Context, creds *model.Credentials) error {
	return c.store.Save(ctx, creds)
}

// Logout drops the stored pair.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Session reports the locally stored login state.
func (c *Client) Session(ctx context.Context) (model.Session, error) {
	return c.store.Session(ctx)
}

// GetJSON retrieves JSON from endpoint and unmarshals into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out interface{}) error {
	data, err := c.DoRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return model.JSONUnmarshal(data, out)
}

// PostJSON marshals in, POSTs it to endpoint and unmarshals the response into
// out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, endpoint string, in, out interface{}, expectedStatus ...int) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if len(expectedStatus) == 0 {
		expectedStatus = []int{http.StatusOK, http.StatusCreated}
	}
	data, err := c.DoRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), expectedStatus...)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return model.JSONUnmarshal(data, out)
}

// DoRequest sends a request and returns the body. A status outside
// expectedStatus (default 200) is returned as *common.HTTPError.
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, body io.Reader, expectedStatus ...int) ([]byte, error) {
	if len(expectedStatus) == 0 {
		expectedStatus = []int{http.StatusOK}
	}
	urlStr, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if !statusMatches(resp.StatusCode, expectedStatus) {
		return nil, &common.HTTPError{StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}

// buildURL resolves endpoint against the base URL.
func (c *Client) buildURL(endpoint string) (string, error) {
	path, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if c.baseURL == "" || path.IsAbs() {
		return path.String(), nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	return base.ResolveReference(path).String(), nil
}

func statusMatches(statusCode int, expected []int) bool {
	for _, s := range expected {
		if statusCode == s {
			return true
		}
	}
	return false
}

// do ends the pipeline: each attempt is one hc.Do, redirects included.
func do(hc *http.Client) http.RoundTripper {
	return common.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return hc.Do(req)
	})
}

// requestID tags each logical request once so its replay can be correlated.
func requestID(next http.RoundTripper) http.RoundTripper {
	return common.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(req)
		}
		clone := req.Clone(req.Context())
		clone.Header.Set(RequestIDHeader, uuid.NewString())
		return next.RoundTrip(clone)
	})
}
