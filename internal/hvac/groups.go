package hvac

import (
	"fmt"
	"sort"
	"strings"
)

// MinGroupMembers is the smallest useful user group.
const MinGroupMembers = 2

// GroupDef is a user group as configured, before sanitisation.
type GroupDef struct {
	Name  string
	Units []UnitID
}

// Group is a sanitised user group. Membership is fixed for its lifetime;
// edits replace the whole Group.
type Group struct {
	Name    string
	Members []UnitID
}

// SanitizeGroups drops group definitions that cannot be served.
//
// For each definition it removes repeated units (keeping first occurrence
// order) and units not in available, then rejects the group when fewer than
// MinGroupMembers remain, when it covers every available unit (that is the
// implicit all-units entity), or when an earlier group has the same member set.
//
// Parameters:
//   - defs: Configured groups in configuration order
//   - available: Every configured unit
//
// Returns:
//   - []Group: Groups that survived, in configuration order
//   - []string: One warning per dropped unit or rejected group
//   - error: ErrNoValidGroups if defs was non-empty and nothing survived
func SanitizeGroups(defs []GroupDef, available []UnitID) ([]Group, []string, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}

	avail := make(map[UnitID]bool, len(available))
	for _, id := range available {
		avail[id] = true
	}

	var (
		groups   []Group
		warnings []string
		seenSets = make(map[string]string)
	)

	for _, def := range defs {
		members := make([]UnitID, 0, len(def.Units))
		seen := make(map[UnitID]bool, len(def.Units))
		for _, id := range def.Units {
			if seen[id] {
				continue
			}
			seen[id] = true
			if !avail[id] {
				warnings = append(warnings, fmt.Sprintf("group %q: unit %s is not configured and was dropped", def.Name, id))
				continue
			}
			members = append(members, id)
		}

		if len(members) < MinGroupMembers {
			warnings = append(warnings, fmt.Sprintf("group %q: needs at least %d valid units", def.Name, MinGroupMembers))
			continue
		}
		if len(members) == len(avail) {
			warnings = append(warnings, fmt.Sprintf("group %q: covers every unit, use the all-units entity", def.Name))
			continue
		}
		key := memberKey(members)
		if prev, dup := seenSets[key]; dup {
			warnings = append(warnings, fmt.Sprintf("group %q: same units as group %q", def.Name, prev))
			continue
		}
		seenSets[key] = def.Name

		groups = append(groups, Group{Name: def.Name, Members: members})
	}

	if len(groups) == 0 {
		return nil, warnings, fmt.Errorf("%w: %s", ErrNoValidGroups, strings.Join(warnings, "; "))
	}
	return groups, warnings, nil
}

// memberKey is an order-insensitive key for a member set.
func memberKey(members []UnitID) string {
	sorted := append([]UnitID(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
