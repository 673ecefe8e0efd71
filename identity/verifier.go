package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultJWKSCacheTTL = 15 * time.Minute

// Verifier validates bearer tokens and returns the subject as user id.
// Locally issued tokens are HS256 with a shared secret; federated tokens are
// RS256 and checked against the provider's JWKS.
type Verifier struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	Secret   []byte

	localParser     *jwt.Parser
	federatedParser *jwt.Parser
	keyCache        sync.Map
	keyCacheTTL     time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewVerifier creates a Verifier. jwks may be nil when federated sign-in is
// not configured, and secret may be empty when local tokens are not accepted.
func NewVerifier(jwks *keyfunc.JWKS, audience, issuer string, secret []byte, keyCacheTTL time.Duration) *Verifier {
	if keyCacheTTL < 0 {
		keyCacheTTL = defaultJWKSCacheTTL
	}
	return &Verifier{
		JWKS:            jwks,
		Audience:        audience,
		Issuer:          issuer,
		Secret:          secret,
		localParser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		federatedParser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL:     keyCacheTTL,
	}
}

// VerifyLocal validates an HS256 token signed with the shared secret.
func (v *Verifier) VerifyLocal(token string) (string, error) {
	if len(v.Secret) == 0 {
		return "", fmt.Errorf("%w: local sign-in is not configured", ErrAuth)
	}
	return v.verify(v.localParser, token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.Secret, nil
	})
}

// VerifyFederated validates an RS256 token against the JWKS.
func (v *Verifier) VerifyFederated(token string) (string, error) {
	return v.verify(v.federatedParser, token, v.keyForToken)
}

// Verify picks the local or federated check from the token's alg header.
func (v *Verifier) Verify(token string) (string, error) {
	unverified, _, err := v.localParser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if unverified.Method.Alg() == jwt.SigningMethodHS256.Alg() {
		return v.VerifyLocal(token)
	}
	return v.VerifyFederated(token)
}

func (v *Verifier) verify(parser *jwt.Parser, token string, keyFunc jwt.Keyfunc) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: %w", ErrAuth, errBadAuthorization)
	}
	parsed, err := parser.Parse(token, keyFunc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims", ErrAuth)
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", fmt.Errorf("%w: token expired", ErrAuth)
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", fmt.Errorf("%w: token not valid yet", ErrAuth)
	}
	if v.Audience != "" && !claims.VerifyAudience(v.Audience, true) {
		return "", fmt.Errorf("%w: invalid audience", ErrAuth)
	}
	if v.Issuer != "" && !claims.VerifyIssuer(v.Issuer, true) {
		return "", fmt.Errorf("%w: invalid issuer", ErrAuth)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: missing sub", ErrAuth)
	}
	return sub, nil
}

func (v *Verifier) keyForToken(token *jwt.Token) (any, error) {
	if v.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && v.keyCacheTTL > 0 {
		if cached, ok := v.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			v.keyCache.Delete(kid)
		}
	}

	key, err := v.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" && v.keyCacheTTL > 0 {
		v.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(v.keyCacheTTL)})
	}
	return key, nil
}
