package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// errSuperseded ends a retry loop whose board has been scheduled, flushed or
// discarded again since the write started.
var errSuperseded = errors.New("write superseded")

// Hooks connect the adapter to the owner of the in-memory boards.
type Hooks struct {
	// Snapshot returns the latest value of a board at the moment a debounced
	// write fires. ok is false when the board no longer exists.
	Snapshot func(boardID string) (board domain.Board, ok bool)
	// Result is called after every completed write with its final outcome.
	Result func(boardID string, err error)
}

// Adapter serializes boards to the gateway. Writes are debounced per board,
// at most one write per board is in flight, and failed writes are retried
// with exponential backoff.
type Adapter struct {
	gw      Gateway
	cfg     Config
	hooks   Hooks
	logger  *log.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	slots   map[string]*slot
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewAdapter(gw Gateway, cfg Config, hooks Hooks, logger *log.Logger, metrics *Metrics) *Adapter {
	if gw == nil {
		panic("gateway is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Adapter{
		gw:      gw,
		cfg:     cfg.withDefaults(),
		hooks:   hooks,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		slots:   make(map[string]*slot),
		stopCh:  make(chan struct{}),
	}
}

// Flush cancels any pending timer for the board and writes it now, returning
// once the write (including retries) has finished.
func (a *Adapter) Flush(ctx context.Context, board domain.Board) error {
	a.mu.Lock()
	s := a.slotLocked(board.ID)
	gen := s.cancel()
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	if err := s.acquire(ctx); err != nil {
		return fmt.Errorf("%w: flush board %s: %w", ErrStore, board.ID, err)
	}
	defer s.release()

	err := a.write(ctx, board, gen)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	a.report(board.ID, err)
	return err
}

// Discard cancels any pending timer for the board and waits for an in-flight
// write to finish. Nothing is written for the board afterwards unless it is
// scheduled or flushed again.
func (a *Adapter) Discard(ctx context.Context, boardID string) error {
	a.mu.Lock()
	s, ok := a.slots[boardID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	s.cancel()
	a.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return fmt.Errorf("%w: discard board %s: %w", ErrStore, boardID, err)
	}
	s.release()

	a.mu.Lock()
	if a.slots[boardID] == s && s.state == slotIdle {
		delete(a.slots, boardID)
	}
	a.mu.Unlock()
	return nil
}

// Delete removes the board document from the gateway.
func (a *Adapter) Delete(ctx context.Context, userID, boardID string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.WriteTimeout)
	defer cancel()
	if err := a.gw.Delete(ctx, userID, boardID); err != nil {
		return fmt.Errorf("%w: delete board %s: %w", ErrStore, boardID, err)
	}
	return nil
}

// Load fetches the user's documents and converts them to boards, oldest
// first. Documents owned by someone else are skipped; partially written
// documents are repaired.
func (a *Adapter) Load(ctx context.Context, userID string) ([]domain.Board, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ReadTimeout)
	defer cancel()
	docs, err := a.gw.FetchAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch boards: %w", ErrStore, err)
	}
	boards := make([]domain.Board, 0, len(docs))
	for _, doc := range docs {
		if doc.UserID != userID {
			continue
		}
		b := domain.FromDocument(doc)
		if v := domain.CheckInvariants(b); v != nil {
			a.logger.WithFields(log.Fields{"user": userID, "board": b.ID}).WithError(v).Warn("repairing stored board")
			b = domain.Repair(b)
		}
		boards = append(boards, b)
	}
	// Gateways return rows in key order and board ids are random.
	slices.SortFunc(boards, func(x, y domain.Board) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return boards, nil
}

// Stop cancels all pending timers and waits for in-flight writes. Callers
// that need pending edits persisted flush them first.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	for _, s := range a.slots {
		s.cancel()
	}
	close(a.stopCh)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Adapter) fire(boardID string, gen uint64) {
	// The snapshot is taken before claiming the slot; Snapshot may need the
	// owner's lock, which is held while Flush and Schedule run.
	board, exists := a.hooks.Snapshot(boardID)
	s, ok := a.take(boardID, gen)
	if !ok {
		return
	}
	defer a.wg.Done()
	if !exists {
		return
	}

	ctx := context.Background()
	if err := s.acquire(ctx); err != nil {
		return
	}
	defer s.release()
	if !a.current(boardID, gen) {
		return
	}

	err := a.write(ctx, board, gen)
	if errors.Is(err, errSuperseded) {
		return
	}
	a.report(boardID, err)
}

func (a *Adapter) write(ctx context.Context, board domain.Board, gen uint64) error {
	entry := a.logger.WithFields(log.Fields{"user": board.UserID, "board": board.ID})
	doc := domain.ToDocument(board)

	var err error
	for attempt := 1; attempt <= a.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			if !a.current(board.ID, gen) {
				entry.WithField("attempt", attempt).Debug("retry abandoned for newer write")
				return errSuperseded
			}
			a.metrics.observeRetry()
			timer := time.NewTimer(exponentialBackoff(attempt-1, a.cfg.RetryInitial, a.cfg.RetryMax))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: write board %s: %w", ErrStore, board.ID, ctx.Err())
			case <-a.stopCh:
				timer.Stop()
				return fmt.Errorf("%w: write board %s: %w", ErrStore, board.ID, err)
			}
		}

		stamp := a.now()
		doc.LastUpdated = &stamp
		wctx, cancel := context.WithTimeout(ctx, a.cfg.WriteTimeout)
		start := time.Now()
		err = a.gw.Upsert(wctx, doc)
		cancel()
		a.metrics.observeWrite(time.Since(start), err)
		if err == nil {
			entry.WithField("tasks", len(doc.Tasks)).Debug("saved board")
			return nil
		}
		entry.WithField("attempt", attempt).WithError(err).Warn("board write failed")
		if errors.Is(err, ErrPermanent) {
			break
		}
	}
	return fmt.Errorf("%w: write board %s: %w", ErrStore, board.ID, err)
}

func (a *Adapter) report(boardID string, err error) {
	if err != nil {
		a.logger.WithField("board", boardID).WithError(err).Error("giving up on board write")
	}
	if a.hooks.Result != nil {
		a.hooks.Result(boardID, err)
	}
}
