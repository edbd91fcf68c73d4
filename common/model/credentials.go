package model

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// JSONUnmarshal is a small helper shared by the clients.
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// Credentials is the access/refresh pair issued by the auth backend.
// The pair is persisted and cleared as a unit.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Complete reports whether both halves of the pair are present.
func (c *Credentials) Complete() bool {
	return c != nil && c.Access != "" && c.Refresh != ""
}

// FromToken builds a pair from an oauth2 token. When the token carries no
// refresh credential (the server did not rotate it), fallbackRefresh is kept.
func FromToken(tok *oauth2.Token, fallbackRefresh string) *Credentials {
	if tok == nil {
		return nil
	}
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	return &Credentials{Access: tok.AccessToken, Refresh: refresh}
}

// RefreshRequest is the body POSTed to the refresh endpoint.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse is the refresh endpoint's success body. Refresh is empty
// when the backend does not rotate refresh credentials.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Session describes the locally stored login state.
type Session struct {
	LoggedIn      bool
	AccessExpired bool
	ExpiresAt     time.Time
}
