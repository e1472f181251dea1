package qbittorrent

import (
	"errors"
	"fmt"
)

// Common errors returned by the proxy and client.
var (
	// ErrConnectionFailed is returned when the remote instance cannot be
	// reached at the transport level.
	ErrConnectionFailed = errors.New("connection to qBittorrent failed")

	// ErrBadResponse is returned when the remote answers with an
	// unexpected status on a client helper call.
	ErrBadResponse = errors.New("unexpected response from qBittorrent")
)

// AuthError wraps a failed login so proxy callers can distinguish an
// upstream authentication failure from a transport failure.
type AuthError struct {
	Result *LoginResult
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("qbittorrent authentication failed: %s", e.Result.Reason)
}
