package hvac

import (
	"errors"
	"testing"
)

func TestSanitizeGroups(t *testing.T) {
	available := []UnitID{uid(1, 1), uid(1, 2), uid(1, 3), uid(1, 4)}

	tests := []struct {
		name         string
		defs         []GroupDef
		wantGroups   []string
		wantWarnings int
		wantErr      error
	}{
		{
			name:       "no groups",
			defs:       nil,
			wantGroups: nil,
		},
		{
			name: "valid group kept",
			defs: []GroupDef{
				{Name: "Office", Units: []UnitID{uid(1, 1), uid(1, 2)}},
			},
			wantGroups: []string{"Office"},
		},
		{
			name: "too few units after dedupe",
			defs: []GroupDef{
				{Name: "Solo", Units: []UnitID{uid(1, 1), uid(1, 1)}},
				{Name: "Office", Units: []UnitID{uid(1, 1), uid(1, 2)}},
			},
			wantGroups:   []string{"Office"},
			wantWarnings: 1,
		},
		{
			name: "unknown unit dropped",
			defs: []GroupDef{
				{Name: "Office", Units: []UnitID{uid(1, 1), uid(3, 3), uid(1, 2)}},
			},
			wantGroups:   []string{"Office"},
			wantWarnings: 1,
		},
		{
			name: "group equal to all units",
			defs: []GroupDef{
				{Name: "Everything", Units: available},
				{Name: "Office", Units: []UnitID{uid(1, 1), uid(1, 2)}},
			},
			wantGroups:   []string{"Office"},
			wantWarnings: 1,
		},
		{
			name: "duplicate member set in another order",
			defs: []GroupDef{
				{Name: "Office", Units: []UnitID{uid(1, 1), uid(1, 2)}},
				{Name: "Desk", Units: []UnitID{uid(1, 2), uid(1, 1)}},
			},
			wantGroups:   []string{"Office"},
			wantWarnings: 1,
		},
		{
			name: "every group invalid",
			defs: []GroupDef{
				{Name: "Solo", Units: []UnitID{uid(1, 1)}},
				{Name: "Ghost", Units: []UnitID{uid(5, 1), uid(5, 2)}},
			},
			wantErr: ErrNoValidGroups,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, warnings, err := SanitizeGroups(tt.defs, available)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SanitizeGroups() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizeGroups() error = %v", err)
			}
			if len(groups) != len(tt.wantGroups) {
				t.Fatalf("groups = %+v, want %v", groups, tt.wantGroups)
			}
			for i, name := range tt.wantGroups {
				if groups[i].Name != name {
					t.Errorf("groups[%d] = %q, want %q", i, groups[i].Name, name)
				}
			}
			if len(warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", warnings, tt.wantWarnings)
			}
		})
	}
}

func TestSanitizeGroups_KeepsOrder(t *testing.T) {
	groups, _, err := SanitizeGroups([]GroupDef{
		{Name: "Office", Units: []UnitID{uid(1, 3), uid(1, 1), uid(1, 3), uid(1, 2)}},
	}, []UnitID{uid(1, 1), uid(1, 2), uid(1, 3), uid(1, 4)})
	if err != nil {
		t.Fatalf("SanitizeGroups() error = %v", err)
	}

	want := []UnitID{uid(1, 3), uid(1, 1), uid(1, 2)}
	got := groups[0].Members
	if len(got) != len(want) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("members[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
