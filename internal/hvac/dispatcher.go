package hvac

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Writer submits one per-unit write to the controller session and blocks
// until it is acknowledged, rejected or timed out.
type Writer interface {
	Write(ctx context.Context, op WriteOp) error
}

// UnitResult is the outcome of one member write.
type UnitResult struct {
	Unit UnitID
	Err  error
}

// MarshalJSON renders the result with the error as a string.
func (r UnitResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Unit  string `json:"unit"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}{Unit: r.Unit.String(), OK: r.Err == nil}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// DispatchResult holds one result per member unit, in member order.
type DispatchResult struct {
	Target  string       `json:"target"`
	Results []UnitResult `json:"results"`
}

// Succeeded lists units whose write was acknowledged.
func (r DispatchResult) Succeeded() []UnitID {
	var ids []UnitID
	for _, res := range r.Results {
		if res.Err == nil {
			ids = append(ids, res.Unit)
		}
	}
	return ids
}

// Failed maps each failed unit to its error.
func (r DispatchResult) Failed() map[UnitID]error {
	failed := make(map[UnitID]error)
	for _, res := range r.Results {
		if res.Err != nil {
			failed[res.Unit] = res.Err
		}
	}
	return failed
}

// Partial reports whether some, but not all, writes succeeded.
func (r DispatchResult) Partial() bool {
	n := len(r.Succeeded())
	return n > 0 && n < len(r.Results)
}

// Err returns nil when every write succeeded and a *PartialDispatchError
// otherwise, including when every write failed.
func (r DispatchResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &PartialDispatchError{Succeeded: r.Succeeded(), Failed: failed}
}

// DispatchStats counts dispatcher activity.
type DispatchStats struct {
	Commands    uint64 `json:"commands"`
	Writes      uint64 `json:"writes"`
	WriteErrors uint64 `json:"write_errors"`
}

// Dispatcher expands a validated command into one write per member.
//
// Member writes are submitted concurrently; the Writer serialises them onto
// the single controller session. One member failing never stops the others.
type Dispatcher struct {
	writer      Writer
	maxInFlight int

	loggerMu sync.RWMutex
	logger   Logger

	commands    atomic.Uint64
	writes      atomic.Uint64
	writeErrors atomic.Uint64
}

// DefaultMaxInFlight bounds how many member writes wait on the session at once.
const DefaultMaxInFlight = 16

// NewDispatcher creates a dispatcher writing through w.
func NewDispatcher(w Writer) *Dispatcher {
	return &Dispatcher{
		writer:      w,
		logger:      noopLogger{},
		maxInFlight: DefaultMaxInFlight,
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

func (d *Dispatcher) log() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

// Dispatch writes vc.Changes to every unit in vc.Units.
//
// Parameters:
//   - ctx: Bounds how long writes may wait in the session queue. A write
//     already on the wire runs to completion or timeout regardless.
//   - vc: Output of the Validator
//
// Returns:
//   - DispatchResult: Per-unit outcome, always complete
//   - error: nil, or a *PartialDispatchError describing the failed members
func (d *Dispatcher) Dispatch(ctx context.Context, vc ValidatedCommand) (DispatchResult, error) {
	d.commands.Add(1)

	result := DispatchResult{
		Target:  vc.Target,
		Results: make([]UnitResult, len(vc.Units)),
	}

	var g errgroup.Group
	g.SetLimit(d.maxInFlight)

	for i, id := range vc.Units {
		result.Results[i].Unit = id
		g.Go(func() error {
			err := d.writer.Write(ctx, WriteOp{Unit: id, Changes: vc.Changes})
			result.Results[i].Err = err
			d.writes.Add(1)
			if err != nil {
				d.writeErrors.Add(1)
				d.log().Warn("unit write failed", "target", vc.Target, "unit", id.String(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // member goroutines never return an error

	err := result.Err()
	if err == nil {
		d.log().Info("command dispatched", "target", vc.Target, "units", len(vc.Units), "fields", vc.Changes.Fields())
	}
	return result, err
}

// Stats returns dispatcher counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Commands:    d.commands.Load(),
		Writes:      d.writes.Load(),
		WriteErrors: d.writeErrors.Load(),
	}
}
