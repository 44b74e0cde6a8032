package hvac

import (
	"fmt"
	"strings"
	"sync"
)

// ModeSet is a named, ordered list of allowed HVAC modes.
type ModeSet struct {
	Name  string     `json:"name"`
	Modes []HVACMode `json:"modes"`
}

// Allows reports whether mode is in the set.
func (s ModeSet) Allows(mode HVACMode) bool {
	for _, m := range s.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ModeSets holds the site's named mode sets and which one is active.
// Units without an explicit set are restricted to the active one; with no
// active set every mode is allowed.
//
// All public methods are thread-safe.
type ModeSets struct {
	mu     sync.RWMutex
	sets   []ModeSet
	active string
}

// NewModeSets validates and stores the named sets.
// active may be empty; otherwise it must name one of sets (case-insensitive).
func NewModeSets(sets []ModeSet, active string) (*ModeSets, error) {
	ms := &ModeSets{sets: make([]ModeSet, 0, len(sets))}
	seen := make(map[string]bool, len(sets))

	for _, s := range sets {
		key := strings.ToLower(s.Name)
		if key == "" {
			return nil, fmt.Errorf("mode set name is empty")
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate mode set %q", s.Name)
		}
		seen[key] = true
		modes, err := checkModes(s.Modes)
		if err != nil {
			return nil, fmt.Errorf("mode set %q: %w", s.Name, err)
		}
		if modes == nil {
			return nil, fmt.Errorf("mode set %q: %w", s.Name, ErrEmptyModeSet)
		}
		ms.sets = append(ms.sets, ModeSet{Name: s.Name, Modes: modes})
	}

	if active != "" {
		set, ok := ms.find(active)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrModeSetNotFound, active)
		}
		ms.active = set.Name
	}
	return ms, nil
}

func (m *ModeSets) find(name string) (ModeSet, bool) {
	for _, s := range m.sets {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return ModeSet{}, false
}

// Get returns the named set.
func (m *ModeSets) Get(name string) (ModeSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.find(name)
	if !ok {
		return ModeSet{}, fmt.Errorf("%w: %q", ErrModeSetNotFound, name)
	}
	return ModeSet{Name: s.Name, Modes: append([]HVACMode(nil), s.Modes...)}, nil
}

// List returns every set in configuration order.
func (m *ModeSets) List() []ModeSet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ModeSet, 0, len(m.sets))
	for _, s := range m.sets {
		out = append(out, ModeSet{Name: s.Name, Modes: append([]HVACMode(nil), s.Modes...)})
	}
	return out
}

// ActiveName returns the name of the active set, or "" when none is active.
func (m *ModeSets) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Activate makes the named set active.
//
// Returns:
//   - bool: false when the set was already active
//   - error: ErrModeSetNotFound if no set has that name
func (m *ModeSets) Activate(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.find(name)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrModeSetNotFound, name)
	}
	if strings.EqualFold(m.active, s.Name) {
		return false, nil
	}
	m.active = s.Name
	return true, nil
}

// AllowedFor returns the modes a unit may be commanded into.
func (m *ModeSets) AllowedFor(u Unit) []HVACMode {
	if u.Modes != nil {
		return append([]HVACMode(nil), u.Modes...)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active != "" {
		if s, ok := m.find(m.active); ok {
			return append([]HVACMode(nil), s.Modes...)
		}
	}
	return append([]HVACMode(nil), AllHVACModes...)
}

// intersectModes keeps the modes of a that also appear in b, in a's order.
func intersectModes(a, b []HVACMode) []HVACMode {
	out := make([]HVACMode, 0, len(a))
	for _, m := range a {
		for _, n := range b {
			if m == n {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
