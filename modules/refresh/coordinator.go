// Package refresh coordinates access credential refreshes.
//
// A Coordinator issues at most one refresh call at a time. Callers that hit
// an expired credential while a refresh is running are queued and receive
// the outcome of that same call. A failed refresh is terminal: the stored
// pair is cleared, every queued caller gets the same *RefreshError, and the
// logout hook runs once.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
)

// DefaultTimeout bounds a single refresh call.
const DefaultTimeout = 10 * time.Second

// ErrAccessExpired is the trigger used for refreshes started before sending,
// when the stored access credential is already past its exp claim.
var ErrAccessExpired = errors.New("access credential expired")

// TokenStore is the persistence the coordinator reads and writes.
type TokenStore interface {
	Load(ctx context.Context) (*model.Credentials, error)
	Save(ctx context.Context, creds *model.Credentials) error
	Clear(ctx context.Context) error
	IsExpired(access string) bool
}

// LogoutFunc receives the terminal refresh error once per failed refresh.
type LogoutFunc func(reason error)

type outcome struct {
	access string
	err    error
}

// Coordinator owns the refreshing flag and waiter queue. Both are only
// touched under mu, at refresh start and refresh completion.
type Coordinator struct {
	store   TokenStore
	auth    common.AuthClient
	logout  LogoutFunc
	logger  common.Logger
	metrics *common.Metrics
	timeout time.Duration

	mu         sync.Mutex
	refreshing bool
	waiters    []chan outcome
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogout sets the hook signalled after an unrecoverable refresh failure.
func WithLogout(fn LogoutFunc) Option {
	return func(c *Coordinator) { c.logout = fn }
}

func WithLogger(l common.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *common.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTimeout bounds each refresh call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator returns a Coordinator refreshing through auth.
func NewCoordinator(store TokenStore, auth common.AuthClient, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		auth:    auth,
		logger:  common.NopLogger(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshOrWait returns a fresh access credential for a caller whose request
// carrying stale was rejected with trigger.
//
// If no refresh is running and the stored credential is no longer stale,
// the stored one is returned without a network call. If nothing is stored,
// ErrNoCredentials is returned; when stale is set the session ended after
// the request was sent, so it comes wrapped in a *RefreshError. Otherwise the caller
// starts a refresh, or joins the one already running. When ctx ends first
// the caller stops waiting; the refresh and other waiters are unaffected.
func (c *Coordinator) RefreshOrWait(ctx context.Context, stale string, trigger error) (string, error) {
	c.mu.Lock()
	if !c.refreshing {
		creds, err := c.store.Load(ctx)
		if err != nil {
			c.mu.Unlock()
			return "", err
		}
		if creds == nil {
			c.mu.Unlock()
			if stale != "" {
				// the pair this caller sent with was cleared while it was in flight
				return "", &RefreshError{Trigger: trigger, Cause: ErrNoCredentials}
			}
			return "", ErrNoCredentials
		}
		if stale != "" && creds.Access != stale {
			c.mu.Unlock()
			return creds.Access, nil
		}
		c.refreshing = true
		go c.run(context.WithoutCancel(ctx), creds.Refresh, trigger)
	}
	ch := make(chan outcome, 1)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case o := <-ch:
		return o.access, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AccessToken returns the stored access credential, refreshing it first when
// it is already expired. It returns "" with no error when nothing is stored.
// Expiry is read from the credential's exp claim, so this suits JWT access
// credentials only.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	creds, err := c.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", nil
	}
	if !c.store.IsExpired(creds.Access) {
		return creds.Access, nil
	}
	return c.RefreshOrWait(ctx, creds.Access, ErrAccessExpired)
}

// Refreshing reports whether a refresh call is outstanding.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of callers waiting on the outstanding refresh.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Coordinator) run(ctx context.Context, refreshToken string, trigger error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debugf("refreshing access credential")
	creds, err := c.auth.RefreshToken(ctx, refreshToken)
	if err == nil {
		switch {
		case creds == nil || creds.Access == "":
			err = errors.New("refresh endpoint returned no access credential")
		case creds.Refresh == "":
			creds = &model.Credentials{Access: creds.Access, Refresh: refreshToken}
		}
	}
	if err == nil {
		err = c.store.Save(ctx, creds)
	}
	if err != nil {
		// the refresh deadline may be what failed; clearing must still run
		c.fail(context.WithoutCancel(ctx), trigger, err)
		return
	}

	waiters := c.drain()
	c.metrics.ObserveRefresh(true, len(waiters))
	c.logger.Infof("access credential refreshed for %d waiting request(s)", len(waiters))
	broadcast(waiters, outcome{access: creds.Access})
}

// fail clears the session, signals logout and only then releases waiters,
// so a waiter that sees the error also sees the logged-out state.
func (c *Coordinator) fail(ctx context.Context, trigger, cause error) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Errorf("clearing credentials after failed refresh: %v", err)
	}
	rerr := &RefreshError{Trigger: trigger, Cause: cause}
	waiters := c.drain()
	c.metrics.ObserveRefresh(false, len(waiters))
	c.metrics.IncLogout()
	c.logger.Warnf("refresh failed, forcing logout (%d waiting request(s)): %v", len(waiters), cause)
	if c.logout != nil {
		c.logout(rerr)
	}
	broadcast(waiters, outcome{err: rerr})
}

// drain resets the flag and empties the queue in one step.
func (c *Coordinator) drain() []chan outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	return waiters
}

// broadcast resolves waiters in enqueue order. Channels are buffered, so an
// abandoned waiter never blocks the others.
func broadcast(waiters []chan outcome, o outcome) {
	for _, ch := range waiters {
		ch <- o
	}
}
