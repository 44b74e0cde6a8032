package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

// defaultAttributionWindow bounds how long after a write a status change is
// still credited to the command.
const defaultAttributionWindow = 2 * time.Minute

// CommandTracker wraps an hvac.Writer and remembers which units were written
// successfully, so the next status change of those units is recorded in
// history as caused by a command rather than observed by polling.
type CommandTracker struct {
	next   hvac.Writer
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	written map[hvac.UnitID]time.Time
}

// NewCommandTracker wraps next. A zero window uses two minutes.
func NewCommandTracker(next hvac.Writer, window time.Duration) *CommandTracker {
	if window <= 0 {
		window = defaultAttributionWindow
	}
	return &CommandTracker{
		next:    next,
		window:  window,
		now:     time.Now,
		written: make(map[hvac.UnitID]time.Time),
	}
}

// Write forwards op and marks the unit on success.
func (t *CommandTracker) Write(ctx context.Context, op hvac.WriteOp) error {
	if err := t.next.Write(ctx, op); err != nil {
		return err
	}
	t.mu.Lock()
	t.written[op.Unit] = t.now()
	t.mu.Unlock()
	return nil
}

// Source returns the history source for a status change of id and consumes
// the mark, so only the first change after a write is credited to it.
func (t *CommandTracker) Source(id hvac.UnitID) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.written[id]
	if !ok {
		return hvac.HistorySourcePoll
	}
	delete(t.written, id)
	if t.now().Sub(at) > t.window {
		return hvac.HistorySourcePoll
	}
	return hvac.HistorySourceCommand
}
