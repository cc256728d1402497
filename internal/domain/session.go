package domain

import "fmt"

// Status is the authentication state of a session.
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticating
	StatusAuthenticated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TokenPair holds the bearer credentials of a session. Both fields are set
// or both are empty.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether both tokens are present.
func (t TokenPair) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

// Credentials is the persisted record of a signed-in session.
type Credentials struct {
	Tokens TokenPair
	User   *User
}

// Complete reports whether the record is usable to restore a session.
func (c Credentials) Complete() bool {
	return c.Tokens.Complete() && c.User != nil
}
