package persistence

import (
	"context"
	"slices"
	"time"
)

type slotState int

const (
	slotIdle slotState = iota
	slotPending
)

func (s slotState) String() string {
	if s == slotPending {
		return "pending"
	}
	return "idle"
}

// slot is the persistence state of one board. gen increases on every
// schedule, flush and discard; a timer or retry loop holding an older gen
// has been superseded and must not write.
type slot struct {
	state slotState
	timer *time.Timer
	gen   uint64
	// write is a one-token semaphore serializing writes of this board.
	write chan struct{}
}

func newSlot() *slot {
	return &slot{write: make(chan struct{}, 1)}
}

func (s *slot) acquire(ctx context.Context) error {
	select {
	case s.write <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slot) release() { <-s.write }

// cancel stops any armed timer and moves the slot back to idle under a new
// generation. Callers hold Adapter.mu.
func (s *slot) cancel() uint64 {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = slotIdle
	s.gen++
	return s.gen
}

// Schedule arms (or re-arms) the debounce timer for boardID. Each call
// restarts the full delay; when it elapses the board's latest snapshot is
// written once.
func (a *Adapter) Schedule(boardID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	s := a.slotLocked(boardID)
	if s.state == slotPending {
		a.metrics.observeCoalesced()
	}
	gen := s.cancel()
	s.state = slotPending
	s.timer = time.AfterFunc(a.cfg.Debounce, func() { a.fire(boardID, gen) })
}

// PendingIDs lists the boards with an armed debounce timer, sorted.
func (a *Adapter) PendingIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []string
	for id, s := range a.slots {
		if s.state == slotPending {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (a *Adapter) slotLocked(boardID string) *slot {
	s, ok := a.slots[boardID]
	if !ok {
		s = newSlot()
		a.slots[boardID] = s
	}
	return s
}

// take claims a fired timer. It reports false when the timer was superseded
// by a later schedule, a flush or a discard.
func (a *Adapter) take(boardID string, gen uint64) (*slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[boardID]
	if !ok || a.stopped || s.gen != gen || s.state != slotPending {
		return nil, false
	}
	s.state = slotIdle
	s.timer = nil
	a.wg.Add(1)
	return s, true
}

// current reports whether gen is still the newest generation of boardID.
func (a *Adapter) current(boardID string, gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[boardID]
	return ok && s.gen == gen
}
