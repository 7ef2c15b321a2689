package moltbook

import (
	"errors"
	"fmt"
)

// ErrAuth matches any 401/403 platform error via errors.Is.
var ErrAuth = errors.New("moltbook: authentication failed")

// APIError is returned for non-success HTTP responses from the platform.
// Auth failures (401/403) are the signal the health machinery keys on;
// everything else is treated as transient.
type APIError struct {
	Status   int
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("moltbook: %s: %d %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("moltbook: %s: status %d", e.Endpoint, e.Status)
}

// IsAuth reports whether the error is an authentication/authorization failure.
func (e *APIError) IsAuth() bool {
	return e.Status == 401 || e.Status == 403
}

// Is makes auth-flavored APIErrors match ErrAuth under errors.Is.
func (e *APIError) Is(target error) bool {
	return target == ErrAuth && e.IsAuth()
}

// IsAuthError reports whether err carries a 401/403 from the platform.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}
