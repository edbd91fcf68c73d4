package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
)

var _ common.AuthClient = (*OAuth2Refresher)(nil)

// OAuth2Refresher refreshes through a standard OAuth2 refresh_token grant.
type OAuth2Refresher struct {
	conf   *oauth2.Config
	client *http.Client
}

// NewOAuth2Refresher returns a refresher for conf. client, when non-nil, is
// used for the token request.
func NewOAuth2Refresher(conf *oauth2.Config, client *http.Client) *OAuth2Refresher {
	return &OAuth2Refresher{conf: conf, client: client}
}

// NewOAuth2Config builds a config that sends client credentials in the form
// body, so a rejected grant costs exactly one request.
func NewOAuth2Config(clientID, clientSecret, tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// RefreshToken exchanges refreshToken for a new pair. A server that does not
// rotate refresh tokens leaves the current one in place.
func (r *OAuth2Refresher) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}
	tok, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			switch rerr.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("%w: %w", ErrRefreshRejected, err)
			}
		}
		return nil, fmt.Errorf("oauth2 refresh failed: %w", err)
	}
	return model.FromToken(tok, refreshToken), nil
}
