package identity

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	MethodLocal     = "local"
	MethodFederated = "federated"
)

// Identity is a signed-in user.
type Identity struct {
	UserID     string    `json:"userId"`
	Method     string    `json:"method"`
	SignedInAt time.Time `json:"signedInAt"`
}

// Credentials carry a locally issued token.
type Credentials struct {
	Token string
}

// Change is delivered to subscribers when a user signs in or out.
type Change struct {
	Identity Identity
	SignedIn bool
}

// Provider tracks which users are signed in and notifies subscribers of
// identity changes.
type Provider struct {
	verifier *Verifier
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	active  map[string]Identity
	subs    map[int]func(Change)
	nextSub int
}

func NewProvider(v *Verifier, logger *log.Logger) *Provider {
	if v == nil {
		panic("verifier is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Provider{
		verifier: v,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		active:   make(map[string]Identity),
		subs:     make(map[int]func(Change)),
	}
}

// SignIn verifies a locally issued token and records the session.
func (p *Provider) SignIn(_ context.Context, c Credentials) (Identity, error) {
	userID, err := p.verifier.VerifyLocal(c.Token)
	if err != nil {
		return Identity{}, err
	}
	return p.signIn(userID, MethodLocal), nil
}

// SignInWithFederatedProvider verifies a token issued by the external
// identity provider and records the session.
func (p *Provider) SignInWithFederatedProvider(_ context.Context, token string) (Identity, error) {
	userID, err := p.verifier.VerifyFederated(token)
	if err != nil {
		return Identity{}, err
	}
	return p.signIn(userID, MethodFederated), nil
}

func (p *Provider) signIn(userID, method string) Identity {
	p.mu.Lock()
	id, ok := p.active[userID]
	if !ok {
		id = Identity{UserID: userID, Method: method, SignedInAt: p.now()}
		p.active[userID] = id
	}
	subs := p.subscribersLocked()
	p.mu.Unlock()

	if !ok {
		p.logger.WithFields(log.Fields{"user": userID, "method": method}).Info("user signed in")
		notify(subs, Change{Identity: id, SignedIn: true})
	}
	return id
}

// SignOut ends the user's session. Subscribers are notified before it
// returns. It reports whether the user was signed in.
func (p *Provider) SignOut(userID string) bool {
	p.mu.Lock()
	id, ok := p.active[userID]
	delete(p.active, userID)
	subs := p.subscribersLocked()
	p.mu.Unlock()

	if !ok {
		return false
	}
	p.logger.WithField("user", userID).Info("user signed out")
	notify(subs, Change{Identity: id, SignedIn: false})
	return true
}

// Authenticate resolves the identity behind an Authorization header. The
// token must be valid and its subject signed in.
func (p *Provider) Authenticate(header string) (Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return Identity{}, err
	}
	userID, err := p.verifier.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	p.mu.Lock()
	id, ok := p.active[userID]
	p.mu.Unlock()
	if !ok {
		return Identity{}, fmt.Errorf("%w: user %s is not signed in", ErrAuth, userID)
	}
	return id, nil
}

// Current returns the identity of a signed-in user.
func (p *Provider) Current(userID string) (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.active[userID]
	return id, ok
}

// Subscribe registers fn for identity changes. Users already signed in are
// replayed to fn before Subscribe returns. The returned function removes the
// subscription.
func (p *Provider) Subscribe(fn func(Change)) func() {
	p.mu.Lock()
	key := p.nextSub
	p.nextSub++
	p.subs[key] = fn
	replay := make([]Identity, 0, len(p.active))
	for _, id := range p.active {
		replay = append(replay, id)
	}
	p.mu.Unlock()

	slices.SortFunc(replay, func(a, b Identity) int { return a.SignedInAt.Compare(b.SignedInAt) })
	for _, id := range replay {
		fn(Change{Identity: id, SignedIn: true})
	}
	return func() {
		p.mu.Lock()
		delete(p.subs, key)
		p.mu.Unlock()
	}
}

func (p *Provider) subscribersLocked() []func(Change) {
	keys := make([]int, 0, len(p.subs))
	for k := range p.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]func(Change), len(keys))
	for i, k := range keys {
		out[i] = p.subs[k]
	}
	return out
}

func notify(subs []func(Change), c Change) {
	for _, fn := range subs {
		fn(c)
	}
}
