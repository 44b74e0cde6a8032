package hvac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors for the hvac package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, hvac.ErrUnitNotFound) {
//	    // handle not found case
//	}
var (
	// ErrUnitNotFound is returned when a unit ID is not configured.
	ErrUnitNotFound = errors.New("hvac: unit not found")

	// ErrEntityNotFound is returned when an entity ID resolves to nothing.
	ErrEntityNotFound = errors.New("hvac: entity not found")

	// ErrInvalidUnitID is returned when a unit ID cannot be parsed or is out of range.
	ErrInvalidUnitID = errors.New("hvac: invalid unit id")

	// ErrDuplicateUnit is returned when a unit is configured twice.
	ErrDuplicateUnit = errors.New("hvac: duplicate unit")

	// ErrInvalidBounds is returned when min >= max or the bounds leave the physical range.
	ErrInvalidBounds = errors.New("hvac: invalid temperature bounds")

	// ErrInvalidMode is returned for an unknown HVAC mode name.
	ErrInvalidMode = errors.New("hvac: invalid hvac mode")

	// ErrInvalidFanMode is returned for an unknown fan mode name.
	ErrInvalidFanMode = errors.New("hvac: invalid fan mode")

	// ErrInvalidSwingMode is returned for an unknown swing mode name.
	ErrInvalidSwingMode = errors.New("hvac: invalid swing mode")

	// ErrInvalidLockMode is returned for an unknown lock label.
	ErrInvalidLockMode = errors.New("hvac: invalid lock mode")

	// ErrModeSetNotFound is returned when a named HVAC mode set does not exist.
	ErrModeSetNotFound = errors.New("hvac: mode set not found")

	// ErrEmptyModeSet is returned when a mode set has no modes.
	ErrEmptyModeSet = errors.New("hvac: mode set is empty")

	// ErrPresetNotFound is returned when a preset name does not exist.
	ErrPresetNotFound = errors.New("hvac: preset not found")

	// ErrInvalidPreset is returned when a preset definition is malformed.
	ErrInvalidPreset = errors.New("hvac: invalid preset")

	// ErrInvalidGroup is returned when a group definition is malformed.
	ErrInvalidGroup = errors.New("hvac: invalid group")

	// ErrNoValidGroups is returned when every configured group was rejected.
	ErrNoValidGroups = errors.New("hvac: all configured groups invalid")

	// ErrNoFields is returned when a command carries no fields to write.
	ErrNoFields = errors.New("hvac: no valid parameters provided")

	// ErrNoTargets is returned when a command names no target entity.
	ErrNoTargets = errors.New("hvac: no target entities")
)

// ValidationKind classifies a capability check failure.
type ValidationKind string

// Validation kinds.
const (
	KindModeNotAllowed        ValidationKind = "mode_not_allowed"
	KindTemperatureOutOfRange ValidationKind = "temperature_out_of_range"
	KindFieldLocked           ValidationKind = "field_locked"
	KindInvalidPreset         ValidationKind = "invalid_preset"
	KindUnknownTarget         ValidationKind = "unknown_target"
	KindNoFields              ValidationKind = "no_fields"
)

// Violation is one failed check, tied to the command field it concerns.
type Violation struct {
	Field   string         `json:"field"`
	Kind    ValidationKind `json:"kind"`
	Message string         `json:"message"`
}

// ValidationError is returned when a command fails capability checks.
// Kind mirrors the first violation; preset checks may carry several.
type ValidationError struct {
	Target     string
	Kind       ValidationKind
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("hvac: validation failed for %s (%s): %s", e.Target, e.Kind, strings.Join(msgs, "; "))
}

// Has reports whether any violation has the given kind.
func (e *ValidationError) Has(kind ValidationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

func newValidationError(target string, violations []Violation) *ValidationError {
	return &ValidationError{
		Target:     target,
		Kind:       violations[0].Kind,
		Violations: violations,
	}
}

// IsValidationKind reports whether err is a *ValidationError containing kind.
func IsValidationKind(err error, kind ValidationKind) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return ve.Has(kind)
}

// PartialDispatchError reports a dispatch where some member writes failed.
// It is returned alongside a DispatchResult, never instead of one.
type PartialDispatchError struct {
	Succeeded []UnitID
	Failed    map[UnitID]error
}

func (e *PartialDispatchError) Error() string {
	ids := make([]UnitID, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failed[id]))
	}
	return fmt.Sprintf("hvac: %d of %d writes failed: %s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(parts, "; "))
}
