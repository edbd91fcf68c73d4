package authhttp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
)

// DefaultScheme prefixes the access credential in the Authorization header.
const DefaultScheme = "Bearer"

// CredentialSource yields the access credential to attach. An empty string
// means the request goes out unauthenticated.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// CredentialLoader is the read side of the token store.
type CredentialLoader interface {
	Load(ctx context.Context) (*model.Credentials, error)
}

// StoreSource reads the access credential straight from the store.
func StoreSource(store CredentialLoader) CredentialSource {
	return storeSource{store: store}
}

type storeSource struct {
	store CredentialLoader
}

func (s storeSource) AccessToken(ctx context.Context) (string, error) {
	creds, err := s.store.Load(ctx)
	if err != nil || creds == nil {
		return "", err
	}
	return creds.Access, nil
}

// NewAuthInterceptor attaches "<scheme> <access>" to every outgoing request.
// A replay carries the credential its refresh produced instead of asking src.
func NewAuthInterceptor(src CredentialSource, scheme string) common.Middleware {
	if scheme == "" {
		scheme = DefaultScheme
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return &authTransport{next: next, src: src, scheme: scheme}
	}
}

type authTransport struct {
	next   http.RoundTripper
	src    CredentialSource
	scheme string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	a := attemptFrom(ctx)

	var access string
	if a != nil && a.override != "" {
		access = a.override
	} else {
		var err error
		if access, err = t.src.AccessToken(ctx); err != nil {
			closeBody(req)
			return nil, fmt.Errorf("failed to read credentials: %w", err)
		}
	}

	clone := req.Clone(ctx)
	if access != "" {
		clone.Header.Set("Authorization", t.scheme+" "+access)
	}
	if a != nil {
		a.sent = access
	}
	return t.next.RoundTrip(clone)
}

// closeBody honours the RoundTripper contract of closing the body on error.
func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
