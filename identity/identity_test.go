package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus/hooks/test"
)

var testSecret = []byte("test-secret")

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"aud": "api://boards",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func newTestVerifier() *Verifier {
	return NewVerifier(nil, "api://boards", "https://issuer/", testSecret, 0)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		err    error
	}{
		{"ok", "Bearer header.payload.signature", "header.payload.signature", nil},
		{"padded", "  Bearer a.b.c  ", "a.b.c", nil},
		{"missing", "", "", errMissingAuthorization},
		{"wrong scheme", "Basic a.b.c", "", errBadAuthorization},
		{"prefix only", "Bearer ", "", errBadAuthorization},
		{"too many periods", "Bearer " + strings.Repeat(".", 1000), "", errBadAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BearerToken(tc.header)
			if tc.err != nil {
				if !errors.Is(err, tc.err) || !errors.Is(err, ErrAuth) {
					t.Fatalf("expected %v wrapped in ErrAuth, got %v", tc.err, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %q, %v", got, err)
			}
		})
	}
}

func TestVerifyLocal(t *testing.T) {
	v := newTestVerifier()
	userID, err := v.VerifyLocal(signHS256(t, validClaims("user-123")))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestVerifyLocalRejects(t *testing.T) {
	v := newTestVerifier()
	expired := validClaims("u1")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongAud := validClaims("u1")
	wrongAud["aud"] = "api://other"
	noSub := validClaims("")

	other, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("u1")).SignedString([]byte("other-secret"))

	cases := map[string]string{
		"expired":        signHS256(t, expired),
		"wrong audience": signHS256(t, wrongAud),
		"missing sub":    signHS256(t, noSub),
		"wrong secret":   other,
		"garbage":        "a.b.c",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.VerifyLocal(token); !errors.Is(err, ErrAuth) {
				t.Fatalf("expected ErrAuth, got %v", err)
			}
		})
	}

	if _, err := NewVerifier(nil, "", "", nil, 0).VerifyLocal(signHS256(t, validClaims("u1"))); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth without secret, got %v", err)
	}
}

func TestVerifyFederatedWithoutJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("u1")).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	v := newTestVerifier()
	if _, err := v.VerifyFederated(signed); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	// An HS256 token is never accepted on the federated path.
	if _, err := v.VerifyFederated(signHS256(t, validClaims("u1"))); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestProviderLifecycle(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewProvider(newTestVerifier(), logger)
	ctx := context.Background()

	var changes []Change
	unsubscribe := p.Subscribe(func(c Change) { changes = append(changes, c) })

	token := signHS256(t, validClaims("u1"))
	if _, err := p.Authenticate("Bearer " + token); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth before sign in, got %v", err)
	}

	id, err := p.SignIn(ctx, Credentials{Token: token})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if id.UserID != "u1" || id.Method != MethodLocal {
		t.Fatalf("unexpected identity %#v", id)
	}
	if _, err := p.SignIn(ctx, Credentials{Token: token}); err != nil {
		t.Fatalf("repeat sign in: %v", err)
	}
	if len(changes) != 1 || !changes[0].SignedIn {
		t.Fatalf("expected one sign-in change, got %#v", changes)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["user"] != "u1" {
		t.Fatalf("expected sign-in log, got %#v", entry)
	}

	got, err := p.Authenticate("Bearer " + token)
	if err != nil || got.UserID != "u1" {
		t.Fatalf("authenticate: %#v, %v", got, err)
	}

	var late []Change
	stopLate := p.Subscribe(func(c Change) { late = append(late, c) })
	defer stopLate()
	if len(late) != 1 || late[0].Identity.UserID != "u1" {
		t.Fatalf("expected replay of active identity, got %#v", late)
	}

	if !p.SignOut("u1") {
		t.Fatalf("expected sign out to report an active session")
	}
	if p.SignOut("u1") {
		t.Fatalf("second sign out should be a no-op")
	}
	if len(changes) != 2 || changes[1].SignedIn {
		t.Fatalf("expected sign-out change, got %#v", changes)
	}
	if _, ok := p.Current("u1"); ok {
		t.Fatalf("user still current after sign out")
	}

	unsubscribe()
	_, _ = p.SignIn(ctx, Credentials{Token: token})
	if len(changes) != 2 {
		t.Fatalf("unsubscribed callback still invoked")
	}
}

func TestSignInRejectsBadToken(t *testing.T) {
	p := NewProvider(newTestVerifier(), nil)
	if _, err := p.SignIn(context.Background(), Credentials{Token: "nope"}); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if _, err := p.SignInWithFederatedProvider(context.Background(), "x.y.z"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}
