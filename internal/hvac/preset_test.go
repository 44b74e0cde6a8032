package hvac

import (
	"errors"
	"testing"
	"time"
)

func TestNewPresets(t *testing.T) {
	ps, err := NewPresets([]Preset{
		{Name: "Eco", Mode: ModeCool, Target: ptr(35.0)},
		{Name: "Night", Mode: ModeHeat, Target: ptr(16.0), Fan: ptr(FanLow)},
	}, testBounds)
	if err != nil {
		t.Fatalf("NewPresets() error = %v", err)
	}

	eco, err := ps.Get("eco")
	if err != nil {
		t.Fatalf("Get(eco) error = %v", err)
	}
	if *eco.Target != 30 {
		t.Errorf("Eco target = %v, want clamped 30", *eco.Target)
	}
	night, _ := ps.Get("Night")
	if *night.Target != 18 {
		t.Errorf("Night target = %v, want clamped 18", *night.Target)
	}

	if _, err := ps.Get("Boost"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("Get(Boost) error = %v, want ErrPresetNotFound", err)
	}
}

func TestNewPresets_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		presets []Preset
	}{
		{"empty name", []Preset{{Mode: ModeCool}}},
		{"duplicate name", []Preset{{Name: "Eco", Mode: ModeCool}, {Name: "ECO", Mode: ModeDry}}},
		{"bad mode", []Preset{{Name: "Eco", Mode: "auto"}}},
		{"bad fan", []Preset{{Name: "Eco", Mode: ModeCool, Fan: ptr(FanMode("turbo"))}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPresets(tt.presets, testBounds); !errors.Is(err, ErrInvalidPreset) {
				t.Errorf("NewPresets() error = %v, want ErrInvalidPreset", err)
			}
		})
	}
}

func TestPresets_Match(t *testing.T) {
	ps, err := NewPresets([]Preset{
		{Name: "Eco", Mode: ModeCool, Target: ptr(26.0)},
		{Name: "Comfort", Mode: ModeCool, Target: ptr(22.0), Fan: ptr(FanMedium)},
	}, testBounds)
	if err != nil {
		t.Fatalf("NewPresets() error = %v", err)
	}

	now := time.Now()
	state := Aggregate([]Unit{validUnit(uid(1, 1), coolStatus(), now)})
	if name, ok := ps.Match(state); !ok || name != "Comfort" {
		t.Errorf("Match() = %q, %v, want Comfort", name, ok)
	}

	other := coolStatus()
	other.Target = 23
	state = Aggregate([]Unit{validUnit(uid(1, 1), coolStatus(), now), validUnit(uid(1, 2), other, now)})
	if name, ok := ps.Match(state); ok {
		t.Errorf("Match() = %q for a mixed set-point, want no match", name)
	}
}

func TestPreset_Command(t *testing.T) {
	p := Preset{Name: "Eco", Mode: ModeDry, Swing: ptr(SwingStop2)}
	cmd := p.Command()

	if cmd.Mode == nil || *cmd.Mode != ModeDry {
		t.Errorf("Mode = %v, want dry", cmd.Mode)
	}
	if cmd.Swing == nil || *cmd.Swing != SwingStop2 {
		t.Errorf("Swing = %v, want stop2", cmd.Swing)
	}
	if cmd.Power != nil || cmd.Target != nil || cmd.Fan != nil {
		t.Errorf("unset preset fields leaked into command: %v", cmd.Fields())
	}
}
