package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/boards"
	"prism-board/identity"
	"prism-board/persistence"
)

const sessionTimeout = 30 * time.Second

// Sessions keeps one board store per signed-in user. Stores are opened when
// the identity provider reports a sign-in and torn down on sign-out.
type Sessions struct {
	gw     persistence.Gateway
	opts   boards.Options
	logger *log.Logger

	mu          sync.Mutex
	stores      map[string]*boards.Store
	unsubscribe func()
}

func NewSessions(provider *identity.Provider, gw persistence.Gateway, opts boards.Options, logger *log.Logger) *Sessions {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Sessions{
		gw:     gw,
		opts:   opts,
		logger: logger,
		stores: make(map[string]*boards.Store),
	}
	s.unsubscribe = provider.Subscribe(s.onChange)
	return s
}

func (s *Sessions) onChange(c identity.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()
	if c.SignedIn {
		s.open(ctx, c.Identity.UserID)
		return
	}
	s.close(ctx, c.Identity.UserID)
}

func (s *Sessions) open(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[userID]; ok {
		return
	}
	store := boards.New(s.gw, s.logger, s.opts)
	if err := store.Init(ctx, userID); err != nil {
		s.logger.WithField("user", userID).WithError(err).Error("failed to open board store")
		return
	}
	s.stores[userID] = store
}

func (s *Sessions) close(ctx context.Context, userID string) {
	s.mu.Lock()
	store, ok := s.stores[userID]
	delete(s.stores, userID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := store.Teardown(ctx); err != nil {
		s.logger.WithField("user", userID).WithError(err).Warn("pending board writes lost on sign out")
	}
}

// Store returns the board store of a signed-in user.
func (s *Sessions) Store(userID string) (*boards.Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[userID]
	return store, ok
}

// Close stops following sign-ins and tears down every open store.
func (s *Sessions) Close(ctx context.Context) error {
	s.unsubscribe()
	s.mu.Lock()
	stores := s.stores
	s.stores = make(map[string]*boards.Store)
	s.mu.Unlock()

	var firstErr error
	for userID, store := range stores {
		if err := store.Teardown(ctx); err != nil {
			s.logger.WithField("user", userID).WithError(err).Warn("pending board writes lost on shutdown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
