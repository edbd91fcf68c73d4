package common

import (
	"context"

	"github.com/guarzo/authpipe/common/model"
)

// AuthClient defines the ability to mint a new credential pair from a
// refresh credential. Implementations talk to the refresh endpoint and must
// not go through the authenticated pipeline themselves.
type AuthClient interface {
	// RefreshToken attempts to refresh using the given refresh token string.
	// Returns the new pair on success, or an error if refresh fails.
	RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error)
}

// AuthClientFunc adapts a function to AuthClient.
type AuthClientFunc func(ctx context.Context, refreshToken string) (*model.Credentials, error)

func (f AuthClientFunc) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	return f(ctx, refreshToken)
}
