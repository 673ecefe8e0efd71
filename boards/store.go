package boards

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
	"prism-board/persistence"
)

var (
	ErrNotInitialized     = errors.New("board store not initialized")
	ErrAlreadyInitialized = errors.New("board store already initialized")
	ErrBoardNotFound      = errors.New("board not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrColumnNotFound     = errors.New("column not found")
	ErrNoCurrentBoard     = errors.New("no current board")
)

// Options configures a Store.
type Options struct {
	// CheckInvariants validates every mutated board and rejects the mutation
	// when a rule is broken. Meant for debug builds and tests.
	CheckInvariants bool
	Persistence     persistence.Config
	Metrics         *persistence.Metrics
	Now             func() time.Time
	NewID           func() string
}

// Warning is the last write failure reported by the persistence adapter.
type Warning struct {
	BoardID string
	Err     error
	At      time.Time
}

// Store is the in-memory authority over one user's boards. Mutations are
// applied to memory synchronously and persisted in the background.
type Store struct {
	gw     persistence.Gateway
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	persist *persistence.Adapter
	ready   bool
	userID  string
	coll    domain.Collection

	warnMu  sync.Mutex
	warning *Warning
}

func New(gw persistence.Gateway, logger *log.Logger, opts Options) *Store {
	if gw == nil {
		panic("gateway is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Store{gw: gw, opts: opts, logger: logger}
}

// Init starts a session for userID and loads the user's boards.
func (s *Store) Init(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		if s.userID == userID {
			return nil
		}
		return fmt.Errorf("%w for user %s", ErrAlreadyInitialized, s.userID)
	}
	s.persist = persistence.NewAdapter(s.gw, s.opts.Persistence, persistence.Hooks{
		Snapshot: s.snapshot,
		Result:   s.recordResult,
	}, s.logger, s.opts.Metrics)
	s.ready = true
	s.userID = userID
	s.loadLocked(ctx)
	return nil
}

// Teardown flushes pending writes, stops the persistence adapter and clears
// all state. The store can be initialized again afterwards.
func (s *Store) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return nil
	}
	err := s.flushPendingLocked(ctx)
	adapter := s.persist
	s.logger.WithField("user", s.userID).Debug("board store torn down")
	s.persist = nil
	s.ready = false
	s.userID = ""
	s.coll = domain.Collection{}
	s.mu.Unlock()

	adapter.Stop()
	s.warnMu.Lock()
	s.warning = nil
	s.warnMu.Unlock()
	return err
}

// LoadBoards replaces the collection with the boards stored for userID and
// selects the first one. A gateway failure is logged and yields an empty
// collection.
func (s *Store) LoadBoards(ctx context.Context, userID string) (domain.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return domain.Collection{}, ErrNotInitialized
	}
	if err := s.flushPendingLocked(ctx); err != nil {
		s.logger.WithField("user", s.userID).WithError(err).Warn("flush before reload failed")
	}
	s.userID = userID
	s.loadLocked(ctx)
	return cloneCollection(s.coll), nil
}

func (s *Store) loadLocked(ctx context.Context) {
	entry := s.logger.WithField("user", s.userID)
	boards, err := s.persist.Load(ctx, s.userID)
	if err != nil {
		entry.WithError(err).Error("failed to load boards")
		boards = nil
	}
	s.coll = domain.Collection{Boards: boards}
	if len(boards) > 0 {
		s.coll.Current = boards[0].ID
	}
	entry.WithField("boards", len(boards)).Info("boards loaded")
}

// CreateBoard adds a new board with the default columns, makes it current
// and writes it immediately.
func (s *Store) CreateBoard(ctx context.Context, title string) (domain.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Board{}, fmt.Errorf("%w: board title is blank", domain.ErrValidationRejected)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return domain.Board{}, ErrNotInitialized
	}

	b := domain.NewBoard(s.opts.NewID(), title, s.userID, s.opts.Now())
	s.coll.Boards = append(s.coll.Boards, b)
	s.coll.Current = b.ID
	s.logger.WithFields(log.Fields{"user": s.userID, "board": b.ID}).Info("board created")

	// A failed write is kept as a warning; the board stays in memory.
	_ = s.persist.Flush(ctx, b)
	return b.Clone(), nil
}

// SwitchBoard makes boardID current after writing the outgoing board.
func (s *Store) SwitchBoard(ctx context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrNotInitialized
	}
	if boardID == s.coll.Current {
		return nil
	}
	if s.indexLocked(boardID) < 0 {
		return fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}

	entry := s.logger.WithFields(log.Fields{"user": s.userID, "board": boardID})
	if idx := s.indexLocked(s.coll.Current); idx >= 0 {
		outgoing := s.coll.Boards[idx]
		if err := s.persist.Flush(ctx, outgoing); err != nil {
			entry.WithField("from", outgoing.ID).WithError(err).Warn("outgoing board not saved before switch")
		}
	}
	s.coll.Current = boardID
	entry.Info("switched board")
	return nil
}

// DeleteBoard waits out any write for the board, deletes it from the gateway
// and then from memory. When the gateway delete fails the board is kept.
func (s *Store) DeleteBoard(ctx context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrNotInitialized
	}
	idx := s.indexLocked(boardID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	if err := s.persist.Discard(ctx, boardID); err != nil {
		return err
	}
	if err := s.persist.Delete(ctx, s.userID, boardID); err != nil {
		s.logger.WithFields(log.Fields{"user": s.userID, "board": boardID}).WithError(err).Error("failed to delete board")
		return err
	}

	s.coll.Boards = slices.Delete(s.coll.Boards, idx, idx+1)
	if s.coll.Current == boardID {
		s.coll.Current = ""
		if len(s.coll.Boards) > 0 {
			s.coll.Current = s.coll.Boards[0].ID
		}
	}
	s.logger.WithFields(log.Fields{"user": s.userID, "board": boardID}).Info("board deleted")
	return nil
}

// AddTask appends a new task with trimmed content to the column.
func (s *Store) AddTask(columnID, content string) (domain.Task, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Task{}, fmt.Errorf("%w: task content is blank", domain.ErrValidationRejected)
	}
	var task domain.Task
	_, err := s.mutate(func(b domain.Board) (domain.Board, error) {
		idx := b.ColumnIndex(columnID)
		if idx < 0 {
			return b, fmt.Errorf("%w: %s", ErrColumnNotFound, columnID)
		}
		task = domain.Task{ID: s.opts.NewID(), Content: content, ColumnID: columnID, CreatedAt: s.opts.Now()}
		next := b.Clone()
		next.Tasks[task.ID] = task
		next.Columns[idx].TaskIDs = append(next.Columns[idx].TaskIDs, task.ID)
		return next, nil
	})
	return task, err
}

// EditTask replaces the task content and stamps updatedAt.
func (s *Store) EditTask(taskID, content string) (domain.Task, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Task{}, fmt.Errorf("%w: task content is blank", domain.ErrValidationRejected)
	}
	var task domain.Task
	_, err := s.mutate(func(b domain.Board) (domain.Board, error) {
		t, ok := b.Tasks[taskID]
		if !ok {
			return b, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		now := s.opts.Now()
		t.Content = content
		t.UpdatedAt = &now
		next := b.Clone()
		next.Tasks[taskID] = t
		task = t
		return next, nil
	})
	return task, err
}

// DeleteTask removes the task from its column and from the task map. An id
// no column lists is ignored.
func (s *Store) DeleteTask(taskID string) error {
	_, err := s.mutate(func(b domain.Board) (domain.Board, error) {
		col, pos := b.Locate(taskID)
		if col < 0 {
			return b, errUnchanged
		}
		next := b.Clone()
		next.Columns[col].TaskIDs = slices.Delete(next.Columns[col].TaskIDs, pos, pos+1)
		delete(next.Tasks, taskID)
		return next, nil
	})
	return err
}

// MoveWithinColumn reorders a task inside one column.
func (s *Store) MoveWithinColumn(columnID string, fromIndex, toIndex int) error {
	_, err := s.mutate(func(b domain.Board) (domain.Board, error) {
		if b.ColumnIndex(columnID) < 0 {
			return b, fmt.Errorf("%w: unknown column %q", domain.ErrInvalidMove, columnID)
		}
		return reordered(b, domain.MoveWithinColumn(b, columnID, fromIndex, toIndex))
	})
	return err
}

// MoveAcrossColumns moves a task to another column at destIndex, clamped to
// the destination's bounds.
func (s *Store) MoveAcrossColumns(taskID, sourceColumnID, destColumnID string, destIndex int) error {
	_, err := s.mutate(func(b domain.Board) (domain.Board, error) {
		next, err := domain.MoveAcrossColumns(b, taskID, sourceColumnID, destColumnID, destIndex)
		if err != nil {
			return b, err
		}
		return reordered(b, next)
	})
	return err
}

// MoveTask places a task at index of destColumnID wherever it currently is.
// The index is clamped to the destination column.
func (s *Store) MoveTask(taskID, destColumnID string, index int) (domain.Board, error) {
	return s.mutate(func(b domain.Board) (domain.Board, error) {
		col, pos := b.Locate(taskID)
		if col < 0 {
			return b, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		srcID := b.Columns[col].ID
		if srcID == destColumnID {
			index = max(0, min(index, len(b.Columns[col].TaskIDs)-1))
			return reordered(b, domain.MoveWithinColumn(b, srcID, pos, index))
		}
		next, err := domain.MoveAcrossColumns(b, taskID, srcID, destColumnID, index)
		if err != nil {
			return b, err
		}
		return reordered(b, next)
	})
}

// DropTask applies a drag-and-drop gesture to the current board.
func (s *Store) DropTask(d domain.Drop) (domain.Board, error) {
	return s.mutate(func(b domain.Board) (domain.Board, error) {
		next, err := domain.ApplyDrop(b, d)
		if err != nil {
			return b, err
		}
		return reordered(b, next)
	})
}

// reordered reports errUnchanged when a move left every column as it was.
func reordered(prev, next domain.Board) (domain.Board, error) {
	for i := range prev.Columns {
		if !slices.Equal(prev.Columns[i].TaskIDs, next.Columns[i].TaskIDs) {
			return next, nil
		}
	}
	return prev, errUnchanged
}

// errUnchanged lets a mutation report that it left the board as it was.
var errUnchanged = errors.New("board unchanged")

// mutate applies fn to the current board, stores the result in the
// collection and schedules a write. On error the board is left untouched.
func (s *Store) mutate(fn func(domain.Board) (domain.Board, error)) (domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return domain.Board{}, ErrNotInitialized
	}
	idx := s.indexLocked(s.coll.Current)
	if idx < 0 {
		return domain.Board{}, ErrNoCurrentBoard
	}
	prev := s.coll.Boards[idx]
	next, err := fn(prev)
	if errors.Is(err, errUnchanged) {
		return prev.Clone(), nil
	}
	if err != nil {
		return prev.Clone(), err
	}
	if s.opts.CheckInvariants {
		if v := domain.CheckInvariants(next); v != nil {
			s.logger.WithFields(log.Fields{"user": s.userID, "board": next.ID}).WithError(v).Error("mutation rejected")
			return prev.Clone(), v
		}
	}
	s.coll.Boards[idx] = next
	s.persist.Schedule(next.ID)
	return next.Clone(), nil
}

// Current returns a copy of the active board.
func (s *Store) Current() (domain.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(s.coll.Current)
	if idx < 0 {
		return domain.Board{}, false
	}
	return s.coll.Boards[idx].Clone(), true
}

// Boards returns copies of all boards in collection order.
func (s *Store) Boards() []domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCollection(s.coll).Boards
}

func (s *Store) Collection() domain.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCollection(s.coll)
}

// UserID returns the signed-in user, or "" before Init.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Warning returns the most recent unresolved write failure.
func (s *Store) Warning() (Warning, bool) {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	if s.warning == nil {
		return Warning{}, false
	}
	return *s.warning, true
}

func (s *Store) snapshot(boardID string) (domain.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return domain.Board{}, false
	}
	idx := s.indexLocked(boardID)
	if idx < 0 {
		return domain.Board{}, false
	}
	return s.coll.Boards[idx].Clone(), true
}

// recordResult may run while s.mu is held by a flush, so it only touches the
// warning.
func (s *Store) recordResult(boardID string, err error) {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	if err != nil {
		s.warning = &Warning{BoardID: boardID, Err: err, At: s.opts.Now()}
		return
	}
	if s.warning != nil && s.warning.BoardID == boardID {
		s.warning = nil
	}
}

func (s *Store) flushPendingLocked(ctx context.Context) error {
	var errs []error
	for _, id := range s.persist.PendingIDs() {
		idx := s.indexLocked(id)
		if idx < 0 {
			continue
		}
		if err := s.persist.Flush(ctx, s.coll.Boards[idx]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) indexLocked(boardID string) int {
	if boardID == "" {
		return -1
	}
	return slices.IndexFunc(s.coll.Boards, func(b domain.Board) bool { return b.ID == boardID })
}

func cloneCollection(c domain.Collection) domain.Collection {
	out := domain.Collection{Current: c.Current}
	if c.Boards != nil {
		out.Boards = make([]domain.Board, len(c.Boards))
		for i, b := range c.Boards {
			out.Boards[i] = b.Clone()
		}
	}
	return out
}
