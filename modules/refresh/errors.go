package refresh

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredentials means there is nothing to refresh with. The caller is
	// unauthenticated; no refresh call is made and no logout is signalled.
	ErrNoCredentials = errors.New("no stored credentials")
	// ErrRefreshRejected means the refresh endpoint refused the refresh credential.
	ErrRefreshRejected = errors.New("refresh credential rejected")
	// ErrRefreshFailed matches every *RefreshError.
	ErrRefreshFailed = errors.New("session refresh failed")
)

// RefreshError is delivered, as the same value, to every caller that shared
// a failed refresh. Trigger is the expiry response that started the refresh;
// Cause is what the refresh call itself returned.
type RefreshError struct {
	Trigger error
	Cause   error
}

func (e *RefreshError) Error() string {
	if e.Trigger == nil {
		return fmt.Sprintf("%v: %v", ErrRefreshFailed, e.Cause)
	}
	return fmt.Sprintf("%v: %v (triggered by: %v)", ErrRefreshFailed, e.Cause, e.Trigger)
}

func (e *RefreshError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRefreshFailed}
	}
	return []error{ErrRefreshFailed, e.Cause}
}
