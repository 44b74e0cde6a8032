package hvac

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the hvac components.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// UnitConfig is the startup configuration of one unit.
// A zero Bounds means the global bounds apply.
type UnitConfig struct {
	ID     UnitID
	Bounds Bounds
	Modes  []HVACMode
}

// RegistryStats summarises registry activity.
type RegistryStats struct {
	Units       int    `json:"units"`
	ValidUnits  int    `json:"valid_units"`
	Applied     uint64 `json:"applied"`
	Ignored     uint64 `json:"ignored"`
	Invalidated uint64 `json:"invalidated"`
}

// Registry holds every configured unit and its latest valid status.
//
// Status is written only by the poll path (ApplyStatus, MarkInvalid) and read
// by everything else. Each unit's status is replaced as a whole under the
// lock, so readers never observe a half-applied record.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	units  map[UnitID]*Unit
	order  []UnitID
	global Bounds
	logger Logger

	applied     uint64
	ignored     uint64
	invalidated uint64
}

// NewRegistry creates a registry for the given units.
//
// Parameters:
//   - global: Site-wide set-point bounds; must satisfy min < max
//   - units: Units to manage; IDs must be valid and unique
//
// Returns:
//   - *Registry: Registry with every unit marked not yet valid
//   - error: ErrInvalidBounds, ErrInvalidUnitID, ErrDuplicateUnit or ErrInvalidMode
func NewRegistry(global Bounds, units []UnitConfig) (*Registry, error) {
	if err := global.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		units:  make(map[UnitID]*Unit, len(units)),
		order:  make([]UnitID, 0, len(units)),
		global: global,
		logger: noopLogger{},
	}

	for _, uc := range units {
		if !uc.ID.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidUnitID, uc.ID)
		}
		if _, exists := r.units[uc.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUnit, uc.ID)
		}
		bounds, err := r.resolveBounds(uc.Bounds)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", uc.ID, err)
		}
		modes, err := checkModes(uc.Modes)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", uc.ID, err)
		}
		r.units[uc.ID] = &Unit{ID: uc.ID, Bounds: bounds, Modes: modes}
		r.order = append(r.order, uc.ID)
	}

	sort.Slice(r.order, func(i, j int) bool { return r.order[i].Less(r.order[j]) })
	return r, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// resolveBounds substitutes the global bounds for a zero value. A unit's own
// bounds can only narrow the global ones.
func (r *Registry) resolveBounds(b Bounds) (Bounds, error) {
	if b == (Bounds{}) {
		return r.global, nil
	}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	narrowed := b.Intersect(r.global)
	if narrowed.Min >= narrowed.Max {
		return Bounds{}, fmt.Errorf("%w: [%g, %g] does not overlap site bounds [%g, %g]",
			ErrInvalidBounds, b.Min, b.Max, r.global.Min, r.global.Max)
	}
	return narrowed, nil
}

func checkModes(modes []HVACMode) ([]HVACMode, error) {
	if modes == nil {
		return nil, nil
	}
	if len(modes) == 0 {
		return nil, ErrEmptyModeSet
	}
	for _, m := range modes {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMode, m)
		}
	}
	return append([]HVACMode(nil), modes...), nil
}

// Configure replaces a unit's temperature bounds and explicit mode set.
// A zero Bounds restores the global bounds; nil modes restores the active set.
// Changes apply to the next validation; already-applied status is untouched.
func (r *Registry) Configure(id UnitID, bounds Bounds, modes []HVACMode) error {
	resolved, err := r.resolveBounds(bounds)
	if err != nil {
		return err
	}
	checked, err := checkModes(modes)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	u.Bounds = resolved
	u.Modes = checked

	r.logger.Info("unit reconfigured", "unit", id.String(), "min", resolved.Min, "max", resolved.Max, "modes", checked)
	return nil
}

// SetModes replaces only the explicit mode set of a unit.
func (r *Registry) SetModes(id UnitID, modes []HVACMode) error {
	checked, err := checkModes(modes)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	u.Modes = checked
	return nil
}

// ApplyStatus stores a decoded, valid status for a unit.
//
// An unknown unit is a no-op: it is logged and false is returned. Otherwise
// the unit becomes valid, its timestamp moves to at, and the return value
// reports whether anything observable changed.
func (r *Registry) ApplyStatus(id UnitID, status UnitStatus, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		r.ignored++
		r.logger.Debug("status for unconfigured unit ignored", "unit", id.String())
		return false
	}

	changed := !u.Valid || u.Status != status
	u.Status = status
	u.Valid = true
	u.LastError = ""
	u.UpdatedAt = at
	r.applied++
	return changed
}

// MarkInvalid flags a unit whose latest record failed to decode.
// The previously applied status and its timestamp are kept.
func (r *Registry) MarkInvalid(id UnitID, reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		r.ignored++
		return
	}
	u.Valid = false
	if reason != nil {
		u.LastError = reason.Error()
	}
	r.invalidated++
	r.logger.Warn("unit status rejected", "unit", id.String(), "error", reason)
}

// Get returns a copy of the unit.
func (r *Registry) Get(id UnitID) (Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[id]
	if !ok {
		return Unit{}, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	return *u.DeepCopy(), nil
}

// GetMany returns copies of the given units taken under one lock, so a group
// read sees every member from the same moment.
func (r *Registry) GetMany(ids []UnitID) ([]Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Unit, 0, len(ids))
	for _, id := range ids {
		u, ok := r.units[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
		}
		out = append(out, *u.DeepCopy())
	}
	return out, nil
}

// Has reports whether the unit is configured.
func (r *Registry) Has(id UnitID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.units[id]
	return ok
}

// IDs returns every configured unit ID in block/unit order.
func (r *Registry) IDs() []UnitID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]UnitID(nil), r.order...)
}

// Blocks returns the distinct block indexes in ascending order.
func (r *Registry) Blocks() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var blocks []int
	for _, id := range r.order {
		if len(blocks) == 0 || blocks[len(blocks)-1] != id.Block {
			blocks = append(blocks, id.Block)
		}
	}
	return blocks
}

// List returns copies of every unit in block/unit order.
func (r *Registry) List() []Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Unit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.units[id].DeepCopy())
	}
	return out
}

// GlobalBounds returns the site-wide set-point bounds.
func (r *Registry) GlobalBounds() Bounds {
	return r.global
}

// Stats returns registry counters.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		Units:       len(r.units),
		Applied:     r.applied,
		Ignored:     r.ignored,
		Invalidated: r.invalidated,
	}
	for _, u := range r.units {
		if u.Valid {
			stats.ValidUnits++
		}
	}
	return stats
}
