package identity

import "errors"

// ErrAuth marks every authentication failure: bad or expired tokens, missing
// headers and requests from users who are not signed in.
var ErrAuth = errors.New("authentication failed")

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)
