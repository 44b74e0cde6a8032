package hvac

import (
	"encoding/json"
	"time"
)

// MixedValue is how a disagreeing field is rendered in JSON.
const MixedValue = "mixed"

// Field is one aggregated value. Exactly one of three states holds:
// Known (all contributing members agree on Value), Mixed (they disagree),
// or neither (nothing contributed).
type Field[T comparable] struct {
	Value T
	Known bool
	Mixed bool
}

// Get returns the value and whether it is known.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Known
}

// MarshalJSON renders a known value as itself, mixed as "mixed" and unknown as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	switch {
	case f.Mixed:
		return json.Marshal(MixedValue)
	case !f.Known:
		return []byte("null"), nil
	default:
		return json.Marshal(f.Value)
	}
}

// AggregateStatus is the derived state of an entity over its member units.
// It is recomputed on every read and never stored.
type AggregateStatus struct {
	Available bool `json:"available"`

	Power  Field[bool]      `json:"onoff_mode"`
	Mode   Field[HVACMode]  `json:"hvac_mode"`
	Target Field[float64]   `json:"target_temperature"`
	Fan    Field[FanMode]   `json:"fan_mode"`
	Swing  Field[SwingMode] `json:"swing_mode"`

	// RoomTemp is the mean of members with a valid reading.
	RoomTemp Field[float64] `json:"room_temperature"`

	// Lock holds every flag set by any member; Locked is true if any flag is.
	Lock       LockState `json:"lock_mode"`
	Locked     bool      `json:"rc_lock"`
	FilterSign bool      `json:"filter_sign"`

	Members      int `json:"members"`
	ValidMembers int `json:"valid_members"`

	// UpdatedAt is the oldest update among valid members, so staleness of any
	// member shows through.
	UpdatedAt time.Time `json:"updated_at"`
}

// Aggregate folds member units into one status.
//
// Only valid members contribute. Enumerated fields and the set-point are
// reported when every contributing member agrees and as mixed otherwise.
// Lock flags and the filter sign are set if any member has them set. With no
// members, or no valid member, the result is unavailable.
func Aggregate(units []Unit) AggregateStatus {
	out := AggregateStatus{Members: len(units)}

	valid := make([]UnitStatus, 0, len(units))
	for _, u := range units {
		if !u.Valid {
			continue
		}
		valid = append(valid, u.Status)
		if out.UpdatedAt.IsZero() || u.UpdatedAt.Before(out.UpdatedAt) {
			out.UpdatedAt = u.UpdatedAt
		}
	}
	out.ValidMembers = len(valid)
	if len(valid) == 0 {
		return out
	}
	out.Available = true

	out.Power = unanimous(valid, func(s UnitStatus) bool { return s.Power })
	out.Mode = unanimous(valid, func(s UnitStatus) HVACMode { return s.Mode })
	out.Target = unanimous(valid, func(s UnitStatus) float64 { return s.Target })
	out.Fan = unanimous(valid, func(s UnitStatus) FanMode { return s.Fan })
	out.Swing = unanimous(valid, func(s UnitStatus) SwingMode { return s.Swing })

	var sum float64
	var readings int
	for _, s := range valid {
		out.Lock = out.Lock.Union(s.Lock)
		out.FilterSign = out.FilterSign || s.FilterSign
		if s.RoomTempValid {
			sum += s.RoomTemp
			readings++
		}
	}
	out.Locked = out.Lock.Any()
	if readings > 0 {
		out.RoomTemp = Field[float64]{Value: sum / float64(readings), Known: true}
	}

	return out
}

func unanimous[T comparable](statuses []UnitStatus, get func(UnitStatus) T) Field[T] {
	first := get(statuses[0])
	for _, s := range statuses[1:] {
		if get(s) != first {
			return Field[T]{Mixed: true}
		}
	}
	return Field[T]{Value: first, Known: true}
}
