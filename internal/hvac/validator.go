package hvac

import (
	"fmt"
	"math"
	"strings"
)

// ValidatedCommand is a command that passed capability checks for a fixed
// set of member units. Only the Validator constructs it.
type ValidatedCommand struct {
	Target  string   `json:"target"`
	Units   []UnitID `json:"units"`
	Changes Command  `json:"changes"`
}

// Capabilities are the effective restrictions of a target: the
// intersection over its members.
type Capabilities struct {
	Modes  []HVACMode `json:"modes"`
	Bounds Bounds     `json:"bounds"`
	Lock   LockState  `json:"lock"`
}

// Validator enforces allowed modes, set-point bounds, edit locks and preset
// well-formedness before anything is written.
//
// Restrictions are read from the registry and mode sets on every call, so
// reconfiguration takes effect on the next command.
type Validator struct {
	registry *Registry
	resolver *Resolver
	modeSets *ModeSets
}

// NewValidator creates a validator.
func NewValidator(registry *Registry, resolver *Resolver, modeSets *ModeSets) *Validator {
	return &Validator{registry: registry, resolver: resolver, modeSets: modeSets}
}

// Validate resolves target and checks cmd against its members.
//
// Every failed check is reported; the error's Kind is that of the first.
//
// Returns:
//   - ValidatedCommand: Ready for dispatch
//   - error: *ValidationError
func (v *Validator) Validate(target string, cmd Command) (ValidatedCommand, error) {
	units, err := v.resolver.Resolve(target)
	if err != nil {
		return ValidatedCommand{}, newValidationError(target, []Violation{{
			Field:   "target",
			Kind:    KindUnknownTarget,
			Message: err.Error(),
		}})
	}
	return v.ValidateUnits(target, units, cmd)
}

// ValidateUnits checks cmd against an already resolved member set.
// target is used only for reporting.
func (v *Validator) ValidateUnits(target string, units []UnitID, cmd Command) (ValidatedCommand, error) {
	violations, err := v.check(units, cmd)
	if err != nil {
		return ValidatedCommand{}, err
	}
	if len(violations) > 0 {
		return ValidatedCommand{}, newValidationError(target, violations)
	}
	return ValidatedCommand{
		Target:  target,
		Units:   append([]UnitID(nil), units...),
		Changes: cmd,
	}, nil
}

// ValidatePreset checks every field of the preset as if it were a direct
// command against target. A preset that has become invalid is rejected as a
// whole; all violating fields are reported together.
func (v *Validator) ValidatePreset(target string, p Preset) (ValidatedCommand, error) {
	units, err := v.resolver.Resolve(target)
	if err != nil {
		return ValidatedCommand{}, newValidationError(target, []Violation{{
			Field:   "target",
			Kind:    KindUnknownTarget,
			Message: err.Error(),
		}})
	}

	var violations []Violation
	if p.ModeSet != "" {
		set, err := v.modeSets.Get(p.ModeSet)
		switch {
		case err != nil:
			violations = append(violations, Violation{
				Field:   "mode_set",
				Kind:    KindInvalidPreset,
				Message: fmt.Sprintf("preset %q references unknown mode set %q", p.Name, p.ModeSet),
			})
		case !set.Allows(p.Mode):
			violations = append(violations, Violation{
				Field:   FieldMode,
				Kind:    KindInvalidPreset,
				Message: fmt.Sprintf("preset %q mode %s is not in mode set %q", p.Name, p.Mode, set.Name),
			})
		}
	}

	cmd := p.Command()
	fieldViolations, err := v.check(units, cmd)
	if err != nil {
		return ValidatedCommand{}, err
	}
	violations = append(violations, fieldViolations...)

	if len(violations) > 0 {
		return ValidatedCommand{}, newValidationError(target, violations)
	}
	return ValidatedCommand{Target: target, Units: units, Changes: cmd}, nil
}

// CapabilitiesOf returns the effective restrictions over the given units.
func (v *Validator) CapabilitiesOf(units []UnitID) (Capabilities, error) {
	members, err := v.registry.GetMany(units)
	if err != nil {
		return Capabilities{}, err
	}
	return v.capabilities(members), nil
}

func (v *Validator) capabilities(members []Unit) Capabilities {
	caps := Capabilities{
		Modes:  append([]HVACMode(nil), AllHVACModes...),
		Bounds: v.registry.GlobalBounds(),
	}
	for i, u := range members {
		allowed := v.modeSets.AllowedFor(u)
		if i == 0 {
			caps.Modes = allowed
			caps.Bounds = u.Bounds
		} else {
			caps.Modes = intersectModes(caps.Modes, allowed)
			caps.Bounds = caps.Bounds.Intersect(u.Bounds)
		}
		caps.Lock = caps.Lock.Union(u.Status.Lock)
	}
	return caps
}

func (v *Validator) check(units []UnitID, cmd Command) ([]Violation, error) {
	if cmd.Empty() {
		return []Violation{{Field: "command", Kind: KindNoFields, Message: ErrNoFields.Error()}}, nil
	}
	if len(units) == 0 {
		return []Violation{{Field: "target", Kind: KindUnknownTarget, Message: "target has no member units"}}, nil
	}

	members, err := v.registry.GetMany(units)
	if err != nil {
		return nil, err
	}
	caps := v.capabilities(members)

	// A command that changes the lock is judged against the lock it sets.
	lock := caps.Lock
	if cmd.Lock != nil {
		lock = *cmd.Lock
	}

	var violations []Violation

	if cmd.Power != nil && lock.OnOff {
		violations = append(violations, lockedViolation(FieldPower, lock))
	}

	if cmd.Mode != nil {
		if lock.Mode {
			violations = append(violations, lockedViolation(FieldMode, lock))
		}
		if !containsMode(caps.Modes, *cmd.Mode) {
			violations = append(violations, Violation{
				Field:   FieldMode,
				Kind:    KindModeNotAllowed,
				Message: fmt.Sprintf("mode %q not in allowed modes [%s]", *cmd.Mode, joinModes(caps.Modes)),
			})
		}
	}

	if cmd.Target != nil {
		if lock.Temp {
			violations = append(violations, lockedViolation(FieldTarget, lock))
		}
		t := *cmd.Target
		switch {
		case math.IsNaN(t) || !caps.Bounds.Contains(t):
			violations = append(violations, Violation{
				Field:   FieldTarget,
				Kind:    KindTemperatureOutOfRange,
				Message: fmt.Sprintf("%g outside [%g, %g]", t, caps.Bounds.Min, caps.Bounds.Max),
			})
		case math.Mod(t, TempStep) != 0:
			violations = append(violations, Violation{
				Field:   FieldTarget,
				Kind:    KindTemperatureOutOfRange,
				Message: fmt.Sprintf("%g is not a multiple of %g", t, TempStep),
			})
		}
	}

	return violations, nil
}

func lockedViolation(field string, lock LockState) Violation {
	return Violation{
		Field:   field,
		Kind:    KindFieldLocked,
		Message: fmt.Sprintf("edits are blocked by lock %s", lock.Label()),
	}
}

func containsMode(modes []HVACMode, m HVACMode) bool {
	for _, x := range modes {
		if x == m {
			return true
		}
	}
	return false
}

func joinModes(modes []HVACMode) string {
	s := make([]string, len(modes))
	for i, m := range modes {
		s[i] = string(m)
	}
	return strings.Join(s, ", ")
}
