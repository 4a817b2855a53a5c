// Package session implements credential issuance and rotation: login,
// refresh, logout and the password flows.
package session

import "time"

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}
