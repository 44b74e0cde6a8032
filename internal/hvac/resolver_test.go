package hvac

import (
	"errors"
	"testing"
	"time"
)

func TestResolver_Resolve(t *testing.T) {
	r := newTestRegistry(t)
	res := newTestResolver(t, r)

	tests := []struct {
		id   string
		want []UnitID
	}{
		{"1-03", []UnitID{uid(1, 3)}},
		{"1-3", []UnitID{uid(1, 3)}},
		{"office", []UnitID{uid(1, 1), uid(1, 2), uid(1, 3)}},
		{"OFFICE", []UnitID{uid(1, 1), uid(1, 2), uid(1, 3)}},
		{"all", []UnitID{uid(1, 1), uid(1, 2), uid(1, 3), uid(1, 4), uid(2, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := res.Resolve(tt.id)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.id, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Resolve(%q) = %v, want %v", tt.id, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Resolve(%q)[%d] = %v, want %v", tt.id, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolver_ResolveUnknown(t *testing.T) {
	res := newTestResolver(t, newTestRegistry(t))

	for _, id := range []string{"3-01", "kitchen", ""} {
		if _, err := res.Resolve(id); !errors.Is(err, ErrEntityNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrEntityNotFound", id, err)
		}
	}
}

func TestNewResolver_InvalidGroups(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name   string
		groups []Group
	}{
		{"reserved name", []Group{{Name: "All", Members: []UnitID{uid(1, 1), uid(1, 2)}}}},
		{"unit-like name", []Group{{Name: "1-02", Members: []UnitID{uid(1, 1), uid(1, 2)}}}},
		{"unknown member", []Group{{Name: "Office", Members: []UnitID{uid(1, 1), uid(6, 6)}}}},
		{"no members", []Group{{Name: "Office"}}},
		{"duplicate name", []Group{
			{Name: "Office", Members: []UnitID{uid(1, 1), uid(1, 2)}},
			{Name: "office", Members: []UnitID{uid(1, 3), uid(1, 4)}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewResolver(r, tt.groups); !errors.Is(err, ErrInvalidGroup) {
				t.Errorf("NewResolver() error = %v, want ErrInvalidGroup", err)
			}
		})
	}
}

func TestResolver_Entities(t *testing.T) {
	res := newTestResolver(t, newTestRegistry(t))

	entities := res.Entities()
	if len(entities) != 7 {
		t.Fatalf("Entities() returned %d, want 5 units + 1 group + all", len(entities))
	}
	if entities[0].ID != "1-01" || entities[0].Kind != EntityUnit {
		t.Errorf("first entity = %+v, want unit 1-01", entities[0])
	}
	if entities[5].ID != "office" || entities[5].Kind != EntityGroup {
		t.Errorf("group entity = %+v, want office", entities[5])
	}
	last := entities[6]
	if !last.IsAllUnits() || len(last.Members) != 5 {
		t.Errorf("last entity = %+v, want all units", last)
	}

	containing := res.EntitiesContaining(uid(1, 2))
	if len(containing) != 3 {
		t.Errorf("EntitiesContaining(1-02) = %d entities, want unit, office and all", len(containing))
	}
}

func TestResolver_StateRecomputedOnRead(t *testing.T) {
	r := newTestRegistry(t)
	res := newTestResolver(t, r)
	applyAll(r, coolStatus())

	st, err := res.State("office")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if v, ok := st.Status.Mode.Get(); !ok || v != ModeCool {
		t.Fatalf("Mode = %+v, want cool", st.Status.Mode)
	}

	heat := coolStatus()
	heat.Mode = ModeHeat
	r.ApplyStatus(uid(1, 2), heat, time.Now())

	st, _ = res.State("office")
	if !st.Status.Mode.Mixed {
		t.Errorf("Mode = %+v, want mixed after one member changed", st.Status.Mode)
	}
}
