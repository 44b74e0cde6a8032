package hvac

import (
	"fmt"
	"strings"
)

// AllUnitsID is the entity ID of the implicit all-units group.
const AllUnitsID = "all"

// EntityKind distinguishes single units from groups.
type EntityKind string

// Entity kinds.
const (
	EntityUnit  EntityKind = "unit"
	EntityGroup EntityKind = "group"
	EntityAll   EntityKind = "all"
)

// Entity is a logical, addressable view onto one or more units.
type Entity struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Kind    EntityKind `json:"kind"`
	Members []UnitID   `json:"members"`
}

// IsAllUnits reports whether the entity is the implicit all-units group.
func (e Entity) IsAllUnits() bool {
	return e.Kind == EntityAll
}

// EntityState is an entity together with its freshly aggregated status.
type EntityState struct {
	Entity
	Status AggregateStatus `json:"status"`
}

// Resolver maps entity IDs to member units and computes entity state.
//
// Entity IDs are:
//   - "block-unit" (e.g. "1-03") for a single unit
//   - the lower-cased group name for a user group
//   - "all" for every configured unit
//
// The group table is fixed at construction. Thread-safe for concurrent reads.
type Resolver struct {
	registry *Registry
	groups   []Group
	byID     map[string]int
}

// NewResolver builds a resolver over the registry's units and the given groups.
//
// Returns:
//   - error: ErrInvalidGroup if a group name collides with a unit or the
//     all-units ID, repeats, or references a unit the registry does not hold
func NewResolver(registry *Registry, groups []Group) (*Resolver, error) {
	r := &Resolver{
		registry: registry,
		groups:   make([]Group, 0, len(groups)),
		byID:     make(map[string]int, len(groups)),
	}

	for _, g := range groups {
		id := strings.ToLower(strings.TrimSpace(g.Name))
		switch {
		case id == "":
			return nil, fmt.Errorf("%w: empty name", ErrInvalidGroup)
		case id == AllUnitsID:
			return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidGroup, g.Name)
		}
		if _, err := ParseUnitID(id); err == nil {
			return nil, fmt.Errorf("%w: %q looks like a unit id", ErrInvalidGroup, g.Name)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidGroup, g.Name)
		}
		if len(g.Members) == 0 {
			return nil, fmt.Errorf("%w: %q has no members", ErrInvalidGroup, g.Name)
		}
		for _, m := range g.Members {
			if !registry.Has(m) {
				return nil, fmt.Errorf("%w: %q references unknown unit %s", ErrInvalidGroup, g.Name, m)
			}
		}

		r.byID[id] = len(r.groups)
		r.groups = append(r.groups, Group{Name: g.Name, Members: append([]UnitID(nil), g.Members...)})
	}
	return r, nil
}

// Entity looks up an entity by ID.
func (r *Resolver) Entity(entityID string) (Entity, error) {
	id := strings.ToLower(strings.TrimSpace(entityID))

	if id == AllUnitsID {
		return Entity{ID: AllUnitsID, Name: "All Units", Kind: EntityAll, Members: r.registry.IDs()}, nil
	}
	if idx, ok := r.byID[id]; ok {
		g := r.groups[idx]
		return Entity{ID: id, Name: g.Name, Kind: EntityGroup, Members: append([]UnitID(nil), g.Members...)}, nil
	}
	if uid, err := ParseUnitID(id); err == nil && r.registry.Has(uid) {
		return Entity{ID: uid.String(), Name: "Unit " + uid.String(), Kind: EntityUnit, Members: []UnitID{uid}}, nil
	}
	return Entity{}, fmt.Errorf("%w: %q", ErrEntityNotFound, entityID)
}

// Resolve returns the ordered member units of an entity.
func (r *Resolver) Resolve(entityID string) ([]UnitID, error) {
	e, err := r.Entity(entityID)
	if err != nil {
		return nil, err
	}
	return e.Members, nil
}

// Entities lists every unit, then every group, then the all-units entity.
func (r *Resolver) Entities() []Entity {
	ids := r.registry.IDs()
	out := make([]Entity, 0, len(ids)+len(r.groups)+1)
	for _, id := range ids {
		out = append(out, Entity{ID: id.String(), Name: "Unit " + id.String(), Kind: EntityUnit, Members: []UnitID{id}})
	}
	for _, g := range r.groups {
		out = append(out, Entity{
			ID:      strings.ToLower(g.Name),
			Name:    g.Name,
			Kind:    EntityGroup,
			Members: append([]UnitID(nil), g.Members...),
		})
	}
	out = append(out, Entity{ID: AllUnitsID, Name: "All Units", Kind: EntityAll, Members: ids})
	return out
}

// EntitiesContaining lists every entity that has the unit as a member.
func (r *Resolver) EntitiesContaining(unit UnitID) []Entity {
	var out []Entity
	for _, e := range r.Entities() {
		for _, m := range e.Members {
			if m == unit {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// State aggregates the current status of an entity's members.
func (r *Resolver) State(entityID string) (EntityState, error) {
	e, err := r.Entity(entityID)
	if err != nil {
		return EntityState{}, err
	}
	return r.stateOf(e)
}

// States aggregates every entity.
func (r *Resolver) States() []EntityState {
	entities := r.Entities()
	out := make([]EntityState, 0, len(entities))
	for _, e := range entities {
		st, err := r.stateOf(e)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

func (r *Resolver) stateOf(e Entity) (EntityState, error) {
	units, err := r.registry.GetMany(e.Members)
	if err != nil {
		return EntityState{}, err
	}
	return EntityState{Entity: e, Status: Aggregate(units)}, nil
}
