package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Controller addressing limits. The SC-SL4 exposes 128 real groups,
// laid out as 8 blocks of 16 units.
const (
	MaxBlocks        = 8
	MaxUnitsPerBlock = 16

	// MaxUserGroups is the number of user-defined groups a site may configure.
	MaxUserGroups = 6

	// MaxPresets and MaxModeSets bound the named bundles kept per site.
	MaxPresets  = 5
	MaxModeSets = 5

	// Scan interval bounds in seconds.
	MinScanInterval     = 5
	MaxScanInterval     = 600
	DefaultScanInterval = 30

	// Physical set-point limits of the controller.
	MinTemperature = 18.0
	MaxTemperature = 30.0
)

// AllUnitsEntity is the reserved entity name for the implicit all-units group.
const AllUnitsEntity = "all"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Config is the root configuration structure for the MHI HVAC service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Controller  ControllerConfig  `yaml:"controller"`
	Units       UnitsConfig       `yaml:"units"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Groups      []GroupConfig     `yaml:"groups"`
	HVACModes   HVACModesConfig   `yaml:"hvac_modes"`
	Presets     []PresetConfig    `yaml:"presets"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ControllerConfig describes how to reach and authenticate with the SC-SL4.
type ControllerConfig struct {
	Name         string `yaml:"name"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Transport    string `yaml:"transport"` // "tcp" or "serial"
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ModelID      string `yaml:"model_id"`
	SerialNumber string `yaml:"serial_number"`

	// ScanInterval is the poll period in seconds.
	ScanInterval int `yaml:"scan_interval"`

	// RequestTimeout bounds a single request/response exchange (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// ConnectTimeout bounds dial plus login (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Serial    SerialConfig    `yaml:"serial"`
}

// ReconnectConfig contains the controller reconnect backoff in seconds.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// SerialConfig is used when the controller is reached through an RS-485 adaptor.
type SerialConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// UnitsConfig selects which blocks and units are managed.
type UnitsConfig struct {
	Blocks    []BlockConfig        `yaml:"blocks"`
	Overrides []UnitOverrideConfig `yaml:"overrides"`
}

// BlockConfig lists the included units of one block.
type BlockConfig struct {
	Index int   `yaml:"index"`
	Units []int `yaml:"units"`
}

// UnitOverrideConfig narrows the capabilities of a single unit.
// Unit uses the "block-unit" notation, e.g. "1-03".
type UnitOverrideConfig struct {
	Unit    string  `yaml:"unit"`
	MinTemp float64 `yaml:"min_temp"`
	MaxTemp float64 `yaml:"max_temp"`
	ModeSet string  `yaml:"mode_set"`
}

// TemperatureConfig holds the global set-point bounds in °C.
type TemperatureConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// GroupConfig is a user-defined group of units.
type GroupConfig struct {
	Name  string   `yaml:"name"`
	Units []string `yaml:"units"`
}

// HVACModesConfig holds the named mode sets and the one active by default.
type HVACModesConfig struct {
	Active string          `yaml:"active"`
	Sets   []ModeSetConfig `yaml:"sets"`
}

// ModeSetConfig is a named list of allowed HVAC modes.
type ModeSetConfig struct {
	Name  string   `yaml:"name"`
	Modes []string `yaml:"modes"`
}

// PresetConfig is a named bundle of target values.
type PresetConfig struct {
	Name        string  `yaml:"name"`
	HVACMode    string  `yaml:"hvac_mode"`
	Power       *bool   `yaml:"power,omitempty"`
	Temperature float64 `yaml:"temperature"`
	FanMode     string  `yaml:"fan_mode"`
	SwingMode   string  `yaml:"swing_mode"`
	ModeSet     string  `yaml:"mode_set,omitempty"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long unit state history is kept, in days.
	HistoryRetention int `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Prefix    string              `yaml:"prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MHIHVAC_SECTION_KEY
// For example: MHIHVAC_CONTROLLER_HOST, MHIHVAC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "MHI HVAC",
		},
		Controller: ControllerConfig{
			Name:           "SC-SL4",
			Port:           9950,
			Transport:      "tcp",
			ScanInterval:   DefaultScanInterval,
			RequestTimeout: 5,
			ConnectTimeout: 10,
			Reconnect: ReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     120,
			},
			Serial: SerialConfig{
				BaudRate: 9600,
				DataBits: 8,
				StopBits: 1,
				Parity:   "N",
			},
		},
		Temperature: TemperatureConfig{
			Min: MinTemperature,
			Max: MaxTemperature,
		},
		Database: DatabaseConfig{
			Path:             "./data/mhihvac.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mhihvac-core",
			},
			QoS:    1,
			Prefix: "mhihvac",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Credentials should always come from the environment in production.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MHIHVAC_CONTROLLER_HOST"); v != "" {
		cfg.Controller.Host = v
	}
	if v := os.Getenv("MHIHVAC_CONTROLLER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Controller.Port = port
		}
	}
	if v := os.Getenv("MHIHVAC_CONTROLLER_USERNAME"); v != "" {
		cfg.Controller.Username = v
	}
	if v := os.Getenv("MHIHVAC_CONTROLLER_PASSWORD"); v != "" {
		cfg.Controller.Password = v
	}

	if v := os.Getenv("MHIHVAC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("MHIHVAC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MHIHVAC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MHIHVAC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("MHIHVAC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("MHIHVAC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("MHIHVAC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
// All problems are collected so the operator can fix them in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	errs = append(errs, c.validateController()...)
	errs = append(errs, c.validateUnits()...)

	// Global bounds are enforced here, not per command.
	if c.Temperature.Min >= c.Temperature.Max {
		errs = append(errs, "temperature.min must be less than temperature.max")
	}
	if c.Temperature.Min < MinTemperature || c.Temperature.Max > MaxTemperature {
		errs = append(errs, fmt.Sprintf("temperature bounds must lie within [%g, %g]", MinTemperature, MaxTemperature))
	}

	errs = append(errs, c.validateModeSets()...)
	errs = append(errs, c.validateGroups()...)
	errs = append(errs, c.validatePresets()...)

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Prefix == "" {
		errs = append(errs, "mqtt.prefix is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateController() []string {
	var errs []string
	ctl := c.Controller

	switch ctl.Transport {
	case "tcp":
		if ctl.Host == "" {
			errs = append(errs, "controller.host is required (set MHIHVAC_CONTROLLER_HOST)")
		}
		if ctl.Port < 1 || ctl.Port > 65535 {
			errs = append(errs, "controller.port must be between 1 and 65535")
		}
	case "serial":
		if ctl.Serial.Device == "" {
			errs = append(errs, "controller.serial.device is required for serial transport")
		}
		if ctl.Serial.BaudRate <= 0 {
			errs = append(errs, "controller.serial.baud_rate must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("controller.transport %q must be tcp or serial", ctl.Transport))
	}

	if ctl.Username == "" {
		errs = append(errs, "controller.username is required")
	}
	if ctl.ScanInterval < MinScanInterval || ctl.ScanInterval > MaxScanInterval {
		errs = append(errs, fmt.Sprintf("controller.scan_interval must be between %d and %d seconds", MinScanInterval, MaxScanInterval))
	}
	if ctl.RequestTimeout <= 0 {
		errs = append(errs, "controller.request_timeout must be positive")
	}
	if ctl.ConnectTimeout <= 0 {
		errs = append(errs, "controller.connect_timeout must be positive")
	}
	if ctl.Reconnect.InitialDelay <= 0 || ctl.Reconnect.MaxDelay < ctl.Reconnect.InitialDelay {
		errs = append(errs, "controller.reconnect delays must be positive with max_delay >= initial_delay")
	}
	return errs
}

func (c *Config) validateUnits() []string {
	var errs []string

	if len(c.Units.Blocks) == 0 {
		errs = append(errs, "units.blocks must include at least one block")
	}

	seenBlocks := make(map[int]bool)
	for _, b := range c.Units.Blocks {
		if b.Index < 1 || b.Index > MaxBlocks {
			errs = append(errs, fmt.Sprintf("units.blocks: index %d out of range 1-%d", b.Index, MaxBlocks))
			continue
		}
		if seenBlocks[b.Index] {
			errs = append(errs, fmt.Sprintf("units.blocks: block %d listed twice", b.Index))
		}
		seenBlocks[b.Index] = true
		for _, u := range b.Units {
			if u < 1 || u > MaxUnitsPerBlock {
				errs = append(errs, fmt.Sprintf("units.blocks[%d]: unit %d out of range 1-%d", b.Index, u, MaxUnitsPerBlock))
			}
		}
	}

	for _, o := range c.Units.Overrides {
		if _, _, err := ParseUnitRef(o.Unit); err != nil {
			errs = append(errs, fmt.Sprintf("units.overrides: %v", err))
			continue
		}
		if o.MinTemp != 0 || o.MaxTemp != 0 {
			if o.MinTemp >= o.MaxTemp {
				errs = append(errs, fmt.Sprintf("units.overrides[%s]: min_temp must be less than max_temp", o.Unit))
			}
			if o.MinTemp < c.Temperature.Min || o.MaxTemp > c.Temperature.Max {
				errs = append(errs, fmt.Sprintf("units.overrides[%s]: [%g, %g] must lie within temperature [%g, %g]",
					o.Unit, o.MinTemp, o.MaxTemp, c.Temperature.Min, c.Temperature.Max))
			}
		}
		if o.ModeSet != "" && c.findModeSet(o.ModeSet) == nil {
			errs = append(errs, fmt.Sprintf("units.overrides[%s]: mode_set %q is not defined", o.Unit, o.ModeSet))
		}
	}
	return errs
}

func (c *Config) validateModeSets() []string {
	var errs []string

	if len(c.HVACModes.Sets) > MaxModeSets {
		errs = append(errs, fmt.Sprintf("hvac_modes.sets: at most %d sets allowed", MaxModeSets))
	}
	seen := make(map[string]bool)
	for _, s := range c.HVACModes.Sets {
		key := strings.ToLower(s.Name)
		if !namePattern.MatchString(s.Name) {
			errs = append(errs, fmt.Sprintf("hvac_modes.sets: name %q must be alphanumeric", s.Name))
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("hvac_modes.sets: duplicate name %q", s.Name))
		}
		seen[key] = true
		if len(s.Modes) == 0 {
			errs = append(errs, fmt.Sprintf("hvac_modes.sets[%s]: modes must not be empty", s.Name))
		}
	}
	if c.HVACModes.Active != "" && c.findModeSet(c.HVACModes.Active) == nil {
		errs = append(errs, fmt.Sprintf("hvac_modes.active %q is not a defined set", c.HVACModes.Active))
	}
	return errs
}

func (c *Config) validateGroups() []string {
	var errs []string

	if len(c.Groups) > MaxUserGroups {
		errs = append(errs, fmt.Sprintf("groups: at most %d groups allowed", MaxUserGroups))
	}
	seen := make(map[string]bool)
	for _, g := range c.Groups {
		key := strings.ToLower(g.Name)
		if !namePattern.MatchString(g.Name) {
			errs = append(errs, fmt.Sprintf("groups: name %q must be alphanumeric", g.Name))
		}
		if key == AllUnitsEntity {
			errs = append(errs, fmt.Sprintf("groups: name %q is reserved", g.Name))
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("groups: duplicate name %q", g.Name))
		}
		seen[key] = true
		for _, u := range g.Units {
			if _, _, err := ParseUnitRef(u); err != nil {
				errs = append(errs, fmt.Sprintf("groups[%s]: %v", g.Name, err))
			}
		}
	}
	return errs
}

func (c *Config) validatePresets() []string {
	var errs []string

	if len(c.Presets) > MaxPresets {
		errs = append(errs, fmt.Sprintf("presets: at most %d presets allowed", MaxPresets))
	}
	seen := make(map[string]bool)
	for _, p := range c.Presets {
		key := strings.ToLower(p.Name)
		if !namePattern.MatchString(p.Name) {
			errs = append(errs, fmt.Sprintf("presets: name %q must be alphanumeric", p.Name))
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("presets: duplicate name %q", p.Name))
		}
		seen[key] = true
		if p.HVACMode == "" {
			errs = append(errs, fmt.Sprintf("presets[%s]: hvac_mode is required", p.Name))
		}
		if p.ModeSet != "" && c.findModeSet(p.ModeSet) == nil {
			errs = append(errs, fmt.Sprintf("presets[%s]: mode_set %q is not defined", p.Name, p.ModeSet))
		}
	}
	return errs
}

func (c *Config) findModeSet(name string) *ModeSetConfig {
	for i := range c.HVACModes.Sets {
		if strings.EqualFold(c.HVACModes.Sets[i].Name, name) {
			return &c.HVACModes.Sets[i]
		}
	}
	return nil
}

// ParseUnitRef parses the "block-unit" notation used in configuration.
func ParseUnitRef(ref string) (block, unit int, err error) {
	b, u, ok := strings.Cut(strings.TrimSpace(ref), "-")
	if !ok {
		return 0, 0, fmt.Errorf("unit %q must use block-unit notation", ref)
	}
	block, err = strconv.Atoi(b)
	if err != nil || block < 1 || block > MaxBlocks {
		return 0, 0, fmt.Errorf("unit %q has invalid block", ref)
	}
	unit, err = strconv.Atoi(u)
	if err != nil || unit < 1 || unit > MaxUnitsPerBlock {
		return 0, 0, fmt.Errorf("unit %q has invalid unit index", ref)
	}
	return block, unit, nil
}

// ScanIntervalDuration returns the controller poll period.
func (c *Config) ScanIntervalDuration() time.Duration {
	return time.Duration(c.Controller.ScanInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
