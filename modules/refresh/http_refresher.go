package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
)

var _ common.AuthClient = (*HTTPRefresher)(nil)

// HTTPRefresher calls a JSON refresh endpoint:
//
//	POST {"refresh": "<refresh>"}  ->  200 {"access": "...", "refresh": "..."}
//
// 400, 401 and 403 mean the refresh credential is no longer valid.
type HTTPRefresher struct {
	url    string
	client *http.Client
}

// NewHTTPRefresher returns a refresher posting to url. client must not be
// the authenticated pipeline; nil uses a plain client with the default timeout.
func NewHTTPRefresher(url string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = common.NewHttpClient("", nil, 0)
	}
	return &HTTPRefresher{url: url, client: client}
}

// RefreshToken exchanges refreshToken for a new pair.
func (r *HTTPRefresher) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	payload, err := json.Marshal(model.RefreshRequest{Refresh: refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %w", ErrRefreshRejected, common.NewHTTPError(resp))
	default:
		return nil, common.NewHTTPError(resp)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}
	var out model.RefreshResponse
	if err := model.JSONUnmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if out.Access == "" {
		return nil, errors.New("refresh response carried no access credential")
	}
	return &model.Credentials{Access: out.Access, Refresh: out.Refresh}, nil
}
