package hvac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Device identity reported for the controller.
const (
	Manufacturer = "Mitsubishi Heavy Industries"
	Model        = "MULTI-SYSTEM AIR-CONDITIONER"
)

// DeviceInfo identifies the controller all entities belong to.
type DeviceInfo struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	ModelID      string `json:"model_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// Refresher schedules an out-of-cycle poll.
type Refresher interface {
	RequestRefresh()
}

// EntityAttributes are the extra read-only attributes of an entity.
type EntityAttributes struct {
	IsAllUnits    bool       `json:"is_all_units"`
	LockLabel     string     `json:"rc_lock_extended"`
	ActiveModeSet string     `json:"active_mode_set,omitempty"`
	AllowedModes  []HVACMode `json:"hvac_modes"`
	Bounds        Bounds     `json:"temperature_bounds"`
	Preset        string     `json:"preset_mode,omitempty"`
}

// EntityView is the outbound projection of an entity.
type EntityView struct {
	EntityState
	Attributes EntityAttributes `json:"attributes"`
}

// ServiceOptions wires the components a Service coordinates.
// Store and Refresher are optional.
type ServiceOptions struct {
	Registry  *Registry
	Resolver  *Resolver
	ModeSets  *ModeSets
	Presets   *Presets
	Writer    Writer
	Refresher Refresher
	Store     ModeSetStore
	Device    DeviceInfo
}

// Service is the inbound command surface: it validates, expands and
// dispatches commands and answers entity state queries.
type Service struct {
	registry   *Registry
	resolver   *Resolver
	modeSets   *ModeSets
	presets    *Presets
	validator  *Validator
	dispatcher *Dispatcher
	refresher  Refresher
	store      ModeSetStore
	device     DeviceInfo

	loggerMu sync.RWMutex
	logger   Logger
}

// NewService creates a service from its components.
func NewService(opts ServiceOptions) (*Service, error) {
	switch {
	case opts.Registry == nil:
		return nil, errors.New("hvac: service requires a registry")
	case opts.Resolver == nil:
		return nil, errors.New("hvac: service requires a resolver")
	case opts.ModeSets == nil:
		return nil, errors.New("hvac: service requires mode sets")
	case opts.Writer == nil:
		return nil, errors.New("hvac: service requires a writer")
	}

	presets := opts.Presets
	if presets == nil {
		presets = &Presets{}
	}
	device := opts.Device
	if device.Manufacturer == "" {
		device.Manufacturer = Manufacturer
	}
	if device.Model == "" {
		device.Model = Model
	}

	return &Service{
		registry:   opts.Registry,
		resolver:   opts.Resolver,
		modeSets:   opts.ModeSets,
		presets:    presets,
		validator:  NewValidator(opts.Registry, opts.Resolver, opts.ModeSets),
		dispatcher: NewDispatcher(opts.Writer),
		refresher:  opts.Refresher,
		store:      opts.Store,
		device:     device,
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the logger for the service and its dispatcher.
func (s *Service) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
	s.dispatcher.SetLogger(logger)
}

func (s *Service) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// SetProperties writes cmd to every unit of every target entity.
//
// When the all-units entity is among targets only it is used; otherwise the
// member units of all targets are merged in order without repeats. A refresh
// poll is requested after any dispatch, including a partial one.
//
// Returns:
//   - DispatchResult: Per-unit outcome (zero when validation failed)
//   - error: ErrNoTargets, ErrNoFields, *ValidationError or *PartialDispatchError
func (s *Service) SetProperties(ctx context.Context, targets []string, cmd Command) (DispatchResult, error) {
	if len(targets) == 0 {
		return DispatchResult{}, ErrNoTargets
	}
	if cmd.Empty() {
		return DispatchResult{}, ErrNoFields
	}

	label, units, err := s.expandTargets(targets)
	if err != nil {
		return DispatchResult{}, err
	}

	vc, err := s.validator.ValidateUnits(label, units, cmd)
	if err != nil {
		s.log().Info("command rejected", "target", label, "error", err)
		return DispatchResult{}, err
	}
	return s.dispatch(ctx, vc)
}

// ApplyPreset validates the named preset against target and dispatches it.
// A preset that violates current restrictions is rejected as a whole.
func (s *Service) ApplyPreset(ctx context.Context, target, name string) (DispatchResult, error) {
	p, err := s.presets.Get(name)
	if err != nil {
		return DispatchResult{}, err
	}
	vc, err := s.validator.ValidatePreset(target, p)
	if err != nil {
		s.log().Info("preset rejected", "target", target, "preset", p.Name, "error", err)
		return DispatchResult{}, err
	}
	return s.dispatch(ctx, vc)
}

func (s *Service) dispatch(ctx context.Context, vc ValidatedCommand) (DispatchResult, error) {
	result, err := s.dispatcher.Dispatch(ctx, vc)
	if s.refresher != nil {
		s.refresher.RequestRefresh()
	}
	return result, err
}

func (s *Service) expandTargets(targets []string) (string, []UnitID, error) {
	entities := make([]Entity, 0, len(targets))
	for _, t := range targets {
		e, err := s.resolver.Entity(t)
		if err != nil {
			return "", nil, newValidationError(t, []Violation{{
				Field:   "target",
				Kind:    KindUnknownTarget,
				Message: err.Error(),
			}})
		}
		if e.IsAllUnits() {
			return e.ID, e.Members, nil
		}
		entities = append(entities, e)
	}

	ids := make([]string, 0, len(entities))
	var units []UnitID
	seen := make(map[UnitID]bool)
	for _, e := range entities {
		ids = append(ids, e.ID)
		for _, m := range e.Members {
			if !seen[m] {
				seen[m] = true
				units = append(units, m)
			}
		}
	}
	return strings.Join(ids, ","), units, nil
}

// ReplaceModeSet gives every member of target an explicit allowed-mode list
// parsed from free text. The change applies to the next command.
//
// Returns:
//   - []UnitID: Units whose set was replaced
//   - error: ErrEntityNotFound, ErrInvalidMode or ErrEmptyModeSet
func (s *Service) ReplaceModeSet(ctx context.Context, target string, names []string) ([]UnitID, error) {
	modes, err := ParseHVACModes(names)
	if err != nil {
		return nil, err
	}
	units, err := s.resolver.Resolve(target)
	if err != nil {
		return nil, err
	}

	for _, id := range units {
		if err := s.registry.SetModes(id, modes); err != nil {
			return nil, err
		}
		if s.store != nil {
			if err := s.store.SaveUnitModes(ctx, id, modes); err != nil {
				s.log().Warn("failed to persist unit modes", "unit", id.String(), "error", err)
			}
		}
	}

	s.log().Info("hvac modes replaced", "target", target, "units", len(units), "modes", modes)
	return units, nil
}

// ActivateModeSet makes the named set the site's active set.
// It reports false without error when that set is already active.
func (s *Service) ActivateModeSet(ctx context.Context, name string) (bool, error) {
	changed, err := s.modeSets.Activate(name)
	if err != nil {
		return false, err
	}
	if !changed {
		s.log().Debug("mode set already active", "mode_set", name)
		return false, nil
	}

	active := s.modeSets.ActiveName()
	if s.store != nil {
		if err := s.store.SaveActive(ctx, active); err != nil {
			s.log().Warn("failed to persist active mode set", "mode_set", active, "error", err)
		}
	}
	s.log().Info("active mode set changed", "mode_set", active)
	return true, nil
}

// RestoreOverrides re-applies persisted runtime mode-set changes.
// Overrides for units or sets that are no longer configured are skipped.
func (s *Service) RestoreOverrides(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	ov, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading mode set overrides: %w", err)
	}

	if ov.Active != "" {
		if _, err := s.modeSets.Activate(ov.Active); err != nil {
			s.log().Warn("stored active mode set skipped", "mode_set", ov.Active, "error", err)
		}
	}
	for id, modes := range ov.Units {
		if err := s.registry.SetModes(id, modes); err != nil {
			s.log().Warn("stored unit modes skipped", "unit", id.String(), "error", err)
		}
	}
	return nil
}

// Entity returns the current view of one entity.
func (s *Service) Entity(id string) (EntityView, error) {
	st, err := s.resolver.State(id)
	if err != nil {
		return EntityView{}, err
	}
	return s.view(st), nil
}

// Entities returns the current view of every entity.
func (s *Service) Entities() []EntityView {
	states := s.resolver.States()
	out := make([]EntityView, 0, len(states))
	for _, st := range states {
		out = append(out, s.view(st))
	}
	return out
}

// EntitiesContaining returns views of every entity that includes unit.
func (s *Service) EntitiesContaining(unit UnitID) []EntityView {
	var out []EntityView
	for _, e := range s.resolver.EntitiesContaining(unit) {
		st, err := s.resolver.State(e.ID)
		if err != nil {
			continue
		}
		out = append(out, s.view(st))
	}
	return out
}

func (s *Service) view(st EntityState) EntityView {
	v := EntityView{
		EntityState: st,
		Attributes: EntityAttributes{
			IsAllUnits:    st.IsAllUnits(),
			LockLabel:     st.Status.Lock.Label(),
			ActiveModeSet: s.modeSets.ActiveName(),
		},
	}
	if caps, err := s.validator.CapabilitiesOf(st.Members); err == nil {
		v.Attributes.AllowedModes = caps.Modes
		v.Attributes.Bounds = caps.Bounds
	}
	if name, ok := s.presets.Match(st.Status); ok {
		v.Attributes.Preset = name
	}
	return v
}

// Presets lists the configured presets.
func (s *Service) Presets() []Preset {
	return s.presets.List()
}

// ModeSets lists the named mode sets and the active one.
func (s *Service) ModeSets() ([]ModeSet, string) {
	return s.modeSets.List(), s.modeSets.ActiveName()
}

// Device returns the controller identity.
func (s *Service) Device() DeviceInfo {
	return s.device
}

// Registry exposes the unit registry for read access.
func (s *Service) Registry() *Registry {
	return s.registry
}

// DispatchStats returns dispatcher counters.
func (s *Service) DispatchStats() DispatchStats {
	return s.dispatcher.Stats()
}
