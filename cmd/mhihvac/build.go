package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/config"
	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

// domain holds the hvac objects built from configuration.
type domain struct {
	registry *hvac.Registry
	resolver *hvac.Resolver
	modeSets *hvac.ModeSets
	presets  *hvac.Presets

	// warnings are dropped group members and rejected groups.
	warnings []string
}

// buildDomain converts the validated configuration into the unit registry,
// the group resolver, mode sets and presets.
//
// Parameters:
//   - cfg: Loaded configuration
//
// Returns:
//   - *domain: Registry, resolver, mode sets and presets
//   - error: If any section cannot be converted
func buildDomain(cfg *config.Config) (*domain, error) {
	global := hvac.Bounds{Min: cfg.Temperature.Min, Max: cfg.Temperature.Max}

	sets, err := buildModeSets(cfg.HVACModes.Sets)
	if err != nil {
		return nil, err
	}
	modeSets, err := hvac.NewModeSets(sets, cfg.HVACModes.Active)
	if err != nil {
		return nil, fmt.Errorf("hvac modes: %w", err)
	}

	units, err := buildUnits(cfg.Units, sets)
	if err != nil {
		return nil, err
	}
	registry, err := hvac.NewRegistry(global, units)
	if err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}

	defs, err := buildGroupDefs(cfg.Groups)
	if err != nil {
		return nil, err
	}
	groups, warnings, err := hvac.SanitizeGroups(defs, registry.IDs())
	if err != nil {
		return nil, fmt.Errorf("groups: %w", err)
	}
	resolver, err := hvac.NewResolver(registry, groups)
	if err != nil {
		return nil, fmt.Errorf("groups: %w", err)
	}

	presetList, err := buildPresets(cfg.Presets)
	if err != nil {
		return nil, err
	}
	presets, err := hvac.NewPresets(presetList, global)
	if err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}

	return &domain{
		registry: registry,
		resolver: resolver,
		modeSets: modeSets,
		presets:  presets,
		warnings: warnings,
	}, nil
}

func buildModeSets(cfgSets []config.ModeSetConfig) ([]hvac.ModeSet, error) {
	sets := make([]hvac.ModeSet, 0, len(cfgSets))
	for _, s := range cfgSets {
		modes, err := hvac.ParseHVACModes(s.Modes)
		if err != nil {
			return nil, fmt.Errorf("mode set %q: %w", s.Name, err)
		}
		sets = append(sets, hvac.ModeSet{Name: s.Name, Modes: modes})
	}
	return sets, nil
}

// buildUnits expands the block lists and applies per-unit overrides.
// A block with no unit list includes every unit index of the block.
func buildUnits(cfg config.UnitsConfig, sets []hvac.ModeSet) ([]hvac.UnitConfig, error) {
	var units []hvac.UnitConfig
	index := make(map[hvac.UnitID]int)

	for _, b := range cfg.Blocks {
		list := b.Units
		if len(list) == 0 {
			list = make([]int, config.MaxUnitsPerBlock)
			for i := range list {
				list[i] = i + 1
			}
		}
		for _, u := range list {
			id := hvac.UnitID{Block: b.Index, Unit: u}
			if _, dup := index[id]; dup {
				continue
			}
			index[id] = len(units)
			units = append(units, hvac.UnitConfig{ID: id})
		}
	}

	for _, o := range cfg.Overrides {
		block, unit, err := config.ParseUnitRef(o.Unit)
		if err != nil {
			return nil, err
		}
		i, ok := index[hvac.UnitID{Block: block, Unit: unit}]
		if !ok {
			return nil, fmt.Errorf("override for unit %s which is not included", o.Unit)
		}
		if o.MinTemp != 0 || o.MaxTemp != 0 {
			units[i].Bounds = hvac.Bounds{Min: o.MinTemp, Max: o.MaxTemp}
		}
		if o.ModeSet != "" {
			set, ok := findSet(sets, o.ModeSet)
			if !ok {
				return nil, fmt.Errorf("override for unit %s: mode set %q is not defined", o.Unit, o.ModeSet)
			}
			units[i].Modes = append([]hvac.HVACMode(nil), set.Modes...)
		}
	}
	return units, nil
}

func findSet(sets []hvac.ModeSet, name string) (hvac.ModeSet, bool) {
	for _, s := range sets {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return hvac.ModeSet{}, false
}

func buildGroupDefs(groups []config.GroupConfig) ([]hvac.GroupDef, error) {
	defs := make([]hvac.GroupDef, 0, len(groups))
	for _, g := range groups {
		def := hvac.GroupDef{Name: g.Name, Units: make([]hvac.UnitID, 0, len(g.Units))}
		for _, ref := range g.Units {
			block, unit, err := config.ParseUnitRef(ref)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", g.Name, err)
			}
			def.Units = append(def.Units, hvac.UnitID{Block: block, Unit: unit})
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// buildPresets converts configured presets. A zero temperature and empty
// fan or swing mode leave that field untouched when the preset is applied.
func buildPresets(cfgPresets []config.PresetConfig) ([]hvac.Preset, error) {
	presets := make([]hvac.Preset, 0, len(cfgPresets))
	for _, p := range cfgPresets {
		mode, err := hvac.ParseHVACMode(p.HVACMode)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		preset := hvac.Preset{Name: p.Name, Mode: mode, ModeSet: p.ModeSet}
		if p.Power != nil {
			v := *p.Power
			preset.Power = &v
		}
		if p.Temperature != 0 {
			v := p.Temperature
			preset.Target = &v
		}
		if p.FanMode != "" {
			fan, err := hvac.ParseFanMode(p.FanMode)
			if err != nil {
				return nil, fmt.Errorf("preset %q: %w", p.Name, err)
			}
			preset.Fan = &fan
		}
		if p.SwingMode != "" {
			swing, err := hvac.ParseSwingMode(p.SwingMode)
			if err != nil {
				return nil, fmt.Errorf("preset %q: %w", p.Name, err)
			}
			preset.Swing = &swing
		}
		presets = append(presets, preset)
	}
	return presets, nil
}

// buildDialer picks the controller transport.
func buildDialer(cfg config.ControllerConfig) (sclink.Dialer, error) {
	switch strings.ToLower(cfg.Transport) {
	case "", "tcp":
		if cfg.Host == "" {
			return nil, fmt.Errorf("controller host is required for tcp transport")
		}
		return sclink.TCPDialer{Address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}, nil
	case "serial":
		if cfg.Serial.Device == "" {
			return nil, fmt.Errorf("controller serial device is required for serial transport")
		}
		return sclink.SerialDialer{
			Device:   cfg.Serial.Device,
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			StopBits: cfg.Serial.StopBits,
			Parity:   cfg.Serial.Parity,
		}, nil
	default:
		return nil, fmt.Errorf("unknown controller transport %q", cfg.Transport)
	}
}

// managerOptions maps controller settings onto link manager options.
// Zero values fall through to the manager defaults.
func managerOptions(cfg config.ControllerConfig, dialer sclink.Dialer, sink sclink.StatusSink) sclink.Options {
	return sclink.Options{
		Dialer:               dialer,
		Sink:                 sink,
		Username:             cfg.Username,
		Password:             cfg.Password,
		ScanInterval:         seconds(cfg.ScanInterval),
		RequestTimeout:       seconds(cfg.RequestTimeout),
		ConnectTimeout:       seconds(cfg.ConnectTimeout),
		ReconnectInterval:    seconds(cfg.Reconnect.InitialDelay),
		MaxReconnectInterval: seconds(cfg.Reconnect.MaxDelay),
	}
}

func deviceInfo(cfg config.ControllerConfig) hvac.DeviceInfo {
	return hvac.DeviceInfo{
		Name:         cfg.Name,
		Manufacturer: hvac.Manufacturer,
		Model:        hvac.Model,
		ModelID:      cfg.ModelID,
		SerialNumber: cfg.SerialNumber,
	}
}
