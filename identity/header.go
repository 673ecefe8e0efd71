package identity

import (
	"fmt"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerToken extracts the compact JWT from an Authorization header value.
func BearerToken(header string) (string, error) {
	raw := strings.Trim(header, " ")
	if raw == "" {
		return "", fmt.Errorf("%w: %w", ErrAuth, errMissingAuthorization)
	}
	if len(raw) <= len(bearerPrefix) || !strings.HasPrefix(raw, bearerPrefix) {
		return "", fmt.Errorf("%w: %w", ErrAuth, errBadAuthorization)
	}
	token := raw[len(bearerPrefix):]
	if strings.Count(token, ".") != 2 {
		return "", fmt.Errorf("%w: %w", ErrAuth, errBadAuthorization)
	}
	return token, nil
}
