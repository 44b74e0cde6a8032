package hvac

import (
	"fmt"
	"strings"
)

// Preset is a named bundle of field values applied in one command.
// Fields are checked against capabilities when applied, not when saved.
type Preset struct {
	Name   string     `json:"name"`
	Mode   HVACMode   `json:"hvac_mode"`
	Power  *bool      `json:"onoff_mode,omitempty"`
	Target *float64   `json:"target_temperature,omitempty"`
	Fan    *FanMode   `json:"fan_mode,omitempty"`
	Swing  *SwingMode `json:"swing_mode,omitempty"`

	// ModeSet, when set, restricts the preset to modes of that named set.
	ModeSet string `json:"mode_set,omitempty"`
}

// Command converts the preset into the command it applies.
func (p Preset) Command() Command {
	mode := p.Mode
	cmd := Command{Mode: &mode}
	if p.Power != nil {
		v := *p.Power
		cmd.Power = &v
	}
	if p.Target != nil {
		v := *p.Target
		cmd.Target = &v
	}
	if p.Fan != nil {
		v := *p.Fan
		cmd.Fan = &v
	}
	if p.Swing != nil {
		v := *p.Swing
		cmd.Swing = &v
	}
	return cmd
}

// Matches reports whether an entity's aggregated state equals every field
// the preset sets. Mixed or unknown fields never match.
func (p Preset) Matches(s AggregateStatus) bool {
	if !s.Available {
		return false
	}
	if v, ok := s.Mode.Get(); !ok || v != p.Mode {
		return false
	}
	if p.Power != nil {
		if v, ok := s.Power.Get(); !ok || v != *p.Power {
			return false
		}
	}
	if p.Target != nil {
		if v, ok := s.Target.Get(); !ok || v != *p.Target {
			return false
		}
	}
	if p.Fan != nil {
		if v, ok := s.Fan.Get(); !ok || v != *p.Fan {
			return false
		}
	}
	if p.Swing != nil {
		if v, ok := s.Swing.Get(); !ok || v != *p.Swing {
			return false
		}
	}
	return true
}

// Presets is the site's read-only preset table.
type Presets struct {
	list []Preset
}

// NewPresets validates names and clamps temperatures to the global bounds.
//
// Returns:
//   - error: ErrInvalidPreset for an empty or repeated name, or a field
//     outside its enumeration
func NewPresets(presets []Preset, global Bounds) (*Presets, error) {
	ps := &Presets{list: make([]Preset, 0, len(presets))}
	seen := make(map[string]bool, len(presets))

	for _, p := range presets {
		key := strings.ToLower(p.Name)
		switch {
		case key == "":
			return nil, fmt.Errorf("%w: empty name", ErrInvalidPreset)
		case seen[key]:
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidPreset, p.Name)
		case !p.Mode.Valid():
			return nil, fmt.Errorf("%w: %q: hvac mode %q", ErrInvalidPreset, p.Name, p.Mode)
		case p.Fan != nil && !p.Fan.Valid():
			return nil, fmt.Errorf("%w: %q: fan mode %q", ErrInvalidPreset, p.Name, *p.Fan)
		case p.Swing != nil && !p.Swing.Valid():
			return nil, fmt.Errorf("%w: %q: swing mode %q", ErrInvalidPreset, p.Name, *p.Swing)
		}
		seen[key] = true

		if p.Target != nil {
			t := global.Clamp(*p.Target)
			p.Target = &t
		}
		ps.list = append(ps.list, p)
	}
	return ps, nil
}

// Get returns the named preset (case-insensitive).
func (ps *Presets) Get(name string) (Preset, error) {
	for _, p := range ps.list {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrPresetNotFound, name)
}

// List returns every preset in configuration order.
func (ps *Presets) List() []Preset {
	return append([]Preset(nil), ps.list...)
}

// Match returns the name of the first preset matching the state, if any.
func (ps *Presets) Match(s AggregateStatus) (string, bool) {
	for _, p := range ps.list {
		if p.Matches(s) {
			return p.Name, true
		}
	}
	return "", false
}
