package hvac

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Controller addressing limits: 8 blocks of 16 units.
const (
	MaxBlocks        = 8
	MaxUnitsPerBlock = 16
)

// Physical set-point range of the controller and the command step.
const (
	PhysicalMinTemp = 18.0
	PhysicalMaxTemp = 30.0
	TempStep        = 0.5
)

// UnitID addresses one physical indoor unit by block and unit index.
type UnitID struct {
	Block int
	Unit  int
}

// String renders the ID as "block-unit", e.g. "1-03".
func (id UnitID) String() string {
	return fmt.Sprintf("%d-%02d", id.Block, id.Unit)
}

// Valid reports whether the ID lies inside the controller's address space.
func (id UnitID) Valid() bool {
	return id.Block >= 1 && id.Block <= MaxBlocks && id.Unit >= 1 && id.Unit <= MaxUnitsPerBlock
}

// Less orders IDs by block, then unit.
func (id UnitID) Less(other UnitID) bool {
	if id.Block != other.Block {
		return id.Block < other.Block
	}
	return id.Unit < other.Unit
}

// MarshalText implements encoding.TextMarshaler so UnitID works as a JSON key.
func (id UnitID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *UnitID) UnmarshalText(b []byte) error {
	parsed, err := ParseUnitID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseUnitID parses "block-unit" notation ("1-3" and "1-03" are equivalent).
func ParseUnitID(s string) (UnitID, error) {
	b, u, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return UnitID{}, fmt.Errorf("%w: %q", ErrInvalidUnitID, s)
	}
	block, err := strconv.Atoi(b)
	if err != nil {
		return UnitID{}, fmt.Errorf("%w: %q", ErrInvalidUnitID, s)
	}
	unit, err := strconv.Atoi(u)
	if err != nil {
		return UnitID{}, fmt.Errorf("%w: %q", ErrInvalidUnitID, s)
	}
	id := UnitID{Block: block, Unit: unit}
	if !id.Valid() {
		return UnitID{}, fmt.Errorf("%w: %q out of range", ErrInvalidUnitID, s)
	}
	return id, nil
}

// HVACMode is the operating mode of a unit.
type HVACMode string

// HVAC modes supported by the controller.
const (
	ModeCool    HVACMode = "cool"
	ModeDry     HVACMode = "dry"
	ModeFanOnly HVACMode = "fan_only"
	ModeHeat    HVACMode = "heat"
)

// AllHVACModes lists every mode in controller order.
var AllHVACModes = []HVACMode{ModeCool, ModeDry, ModeFanOnly, ModeHeat}

// Valid reports whether m is a known mode.
func (m HVACMode) Valid() bool {
	switch m {
	case ModeCool, ModeDry, ModeFanOnly, ModeHeat:
		return true
	}
	return false
}

// ParseHVACMode accepts free text such as "Cool", "fan only" or "FAN-ONLY".
func ParseHVACMode(s string) (HVACMode, error) {
	m := HVACMode(normaliseName(s))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// ParseHVACModes parses a free-text list, dropping duplicates and keeping order.
func ParseHVACModes(names []string) ([]HVACMode, error) {
	modes := make([]HVACMode, 0, len(names))
	seen := make(map[HVACMode]bool, len(names))
	for _, n := range names {
		m, err := ParseHVACMode(n)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		modes = append(modes, m)
	}
	if len(modes) == 0 {
		return nil, ErrEmptyModeSet
	}
	return modes, nil
}

// FanMode is the fan speed setting.
type FanMode string

// Fan modes.
const (
	FanLow     FanMode = "low"
	FanMedium  FanMode = "medium"
	FanHigh    FanMode = "high"
	FanDiffuse FanMode = "diffuse"
)

// Valid reports whether f is a known fan mode.
func (f FanMode) Valid() bool {
	switch f {
	case FanLow, FanMedium, FanHigh, FanDiffuse:
		return true
	}
	return false
}

// ParseFanMode parses a fan mode name case-insensitively.
func ParseFanMode(s string) (FanMode, error) {
	f := FanMode(normaliseName(s))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFanMode, s)
	}
	return f, nil
}

// SwingMode is the louvre position.
type SwingMode string

// Swing modes.
const (
	SwingAuto  SwingMode = "auto"
	SwingStop1 SwingMode = "stop1"
	SwingStop2 SwingMode = "stop2"
	SwingStop3 SwingMode = "stop3"
	SwingStop4 SwingMode = "stop4"
)

// Valid reports whether s is a known swing mode.
func (s SwingMode) Valid() bool {
	switch s {
	case SwingAuto, SwingStop1, SwingStop2, SwingStop3, SwingStop4:
		return true
	}
	return false
}

// ParseSwingMode parses a swing mode name case-insensitively.
func ParseSwingMode(s string) (SwingMode, error) {
	m := SwingMode(strings.ReplaceAll(normaliseName(s), "_", ""))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSwingMode, s)
	}
	return m, nil
}

func normaliseName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// LockState is the remote-controller edit lock of a unit. The eight labels
// are derived from the three flags.
type LockState struct {
	OnOff bool
	Mode  bool
	Temp  bool
}

// Lock labels.
const (
	LockUnlocked  = "unlocked"
	LockLocked    = "locked"
	LockOnOff     = "locked_onoff"
	LockMode      = "locked_mode"
	LockTemp      = "locked_temp"
	LockOnOffMode = "locked_onoff_mode"
	LockOnOffTemp = "locked_onoff_temp"
	LockModeTemp  = "locked_mode_temp"
)

// LockLabels lists every lock label.
var LockLabels = []string{
	LockUnlocked, LockLocked, LockOnOff, LockMode, LockTemp,
	LockOnOffMode, LockOnOffTemp, LockModeTemp,
}

// Label returns the enumerated name of the lock combination.
func (l LockState) Label() string {
	switch {
	case l.OnOff && l.Mode && l.Temp:
		return LockLocked
	case !l.OnOff && !l.Mode && !l.Temp:
		return LockUnlocked
	}
	parts := []string{"locked"}
	if l.OnOff {
		parts = append(parts, "onoff")
	}
	if l.Mode {
		parts = append(parts, "mode")
	}
	if l.Temp {
		parts = append(parts, "temp")
	}
	return strings.Join(parts, "_")
}

// Any reports whether at least one edit is locked.
func (l LockState) Any() bool {
	return l.OnOff || l.Mode || l.Temp
}

// Union returns the lock that restricts everything either lock restricts.
func (l LockState) Union(other LockState) LockState {
	return LockState{
		OnOff: l.OnOff || other.OnOff,
		Mode:  l.Mode || other.Mode,
		Temp:  l.Temp || other.Temp,
	}
}

// MarshalText renders the lock as its label.
func (l LockState) MarshalText() ([]byte, error) {
	return []byte(l.Label()), nil
}

// UnmarshalText parses a lock label.
func (l *LockState) UnmarshalText(b []byte) error {
	parsed, err := ParseLockLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLockLabel maps one of the eight labels back to its flags.
func ParseLockLabel(s string) (LockState, error) {
	switch normaliseName(s) {
	case LockUnlocked:
		return LockState{}, nil
	case LockLocked:
		return LockState{OnOff: true, Mode: true, Temp: true}, nil
	case LockOnOff:
		return LockState{OnOff: true}, nil
	case LockMode:
		return LockState{Mode: true}, nil
	case LockTemp:
		return LockState{Temp: true}, nil
	case LockOnOffMode:
		return LockState{OnOff: true, Mode: true}, nil
	case LockOnOffTemp:
		return LockState{OnOff: true, Temp: true}, nil
	case LockModeTemp:
		return LockState{Mode: true, Temp: true}, nil
	}
	return LockState{}, fmt.Errorf("%w: %q", ErrInvalidLockMode, s)
}

// UnitStatus is one decoded status record of a unit.
type UnitStatus struct {
	Power         bool      `json:"power"`
	Mode          HVACMode  `json:"hvac_mode"`
	Target        float64   `json:"target_temperature"`
	Fan           FanMode   `json:"fan_mode"`
	Swing         SwingMode `json:"swing_mode"`
	Lock          LockState `json:"lock_mode"`
	FilterSign    bool      `json:"filter_sign"`
	RoomTemp      float64   `json:"room_temperature"`
	RoomTempValid bool      `json:"room_temperature_valid"`
}

// Bounds is an inclusive set-point range in °C.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether t lies within the bounds.
func (b Bounds) Contains(t float64) bool {
	return t >= b.Min && t <= b.Max
}

// Clamp limits t to the bounds.
func (b Bounds) Clamp(t float64) float64 {
	if t < b.Min {
		return b.Min
	}
	if t > b.Max {
		return b.Max
	}
	return t
}

// Validate checks min < max inside the physical range.
func (b Bounds) Validate() error {
	if b.Min >= b.Max {
		return fmt.Errorf("%w: min %g must be less than max %g", ErrInvalidBounds, b.Min, b.Max)
	}
	if b.Min < PhysicalMinTemp || b.Max > PhysicalMaxTemp {
		return fmt.Errorf("%w: [%g, %g] outside [%g, %g]", ErrInvalidBounds, b.Min, b.Max, PhysicalMinTemp, PhysicalMaxTemp)
	}
	return nil
}

// Intersect narrows b by other. Used for groups, where the strictest member
// wins, and to keep unit bounds inside the site bounds.
func (b Bounds) Intersect(other Bounds) Bounds {
	out := b
	if other.Min > out.Min {
		out.Min = other.Min
	}
	if other.Max < out.Max {
		out.Max = other.Max
	}
	return out
}

// Unit is the registry's view of one physical unit.
type Unit struct {
	ID UnitID `json:"id"`

	// Status is the last status that decoded cleanly.
	Status UnitStatus `json:"status"`

	// Valid is false before the first good record and after a record for this
	// unit failed to decode. Status is never overwritten by a bad record.
	Valid bool `json:"valid"`

	// UpdatedAt is when Status was last applied. Zero until the first poll.
	UpdatedAt time.Time `json:"updated_at"`

	// LastError describes the most recent decode failure, if any.
	LastError string `json:"last_error,omitempty"`

	Bounds Bounds `json:"bounds"`

	// Modes is an explicit allowed-mode set. Nil means the active named set applies.
	Modes []HVACMode `json:"modes,omitempty"`
}

// DeepCopy returns a copy that shares no slices with u.
func (u *Unit) DeepCopy() *Unit {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Modes != nil {
		cp.Modes = append([]HVACMode(nil), u.Modes...)
	}
	return &cp
}

// Command is a set of field changes. Nil fields are left untouched on the unit.
type Command struct {
	Power       *bool      `json:"onoff_mode,omitempty"`
	Mode        *HVACMode  `json:"hvac_mode,omitempty"`
	Target      *float64   `json:"target_temperature,omitempty"`
	Fan         *FanMode   `json:"fan_mode,omitempty"`
	Swing       *SwingMode `json:"swing_mode,omitempty"`
	FilterReset bool       `json:"filter_reset,omitempty"`
	Lock        *LockState `json:"lock_mode,omitempty"`
}

// Empty reports whether the command changes nothing.
func (c Command) Empty() bool {
	return c.Power == nil && c.Mode == nil && c.Target == nil && c.Fan == nil &&
		c.Swing == nil && !c.FilterReset && c.Lock == nil
}

// Fields lists the names of the fields the command sets.
func (c Command) Fields() []string {
	var f []string
	if c.Power != nil {
		f = append(f, FieldPower)
	}
	if c.Mode != nil {
		f = append(f, FieldMode)
	}
	if c.Target != nil {
		f = append(f, FieldTarget)
	}
	if c.Fan != nil {
		f = append(f, FieldFan)
	}
	if c.Swing != nil {
		f = append(f, FieldSwing)
	}
	if c.FilterReset {
		f = append(f, FieldFilterReset)
	}
	if c.Lock != nil {
		f = append(f, FieldLock)
	}
	return f
}

// Command field names, as used on the wire of the inbound interfaces.
const (
	FieldPower       = "onoff_mode"
	FieldMode        = "hvac_mode"
	FieldTarget      = "target_temperature"
	FieldFan         = "fan_mode"
	FieldSwing       = "swing_mode"
	FieldFilterReset = "filter_reset"
	FieldLock        = "lock_mode"
)

// WriteOp is one per-unit write handed to the connection layer.
type WriteOp struct {
	Unit    UnitID
	Changes Command
}
