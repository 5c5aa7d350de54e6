// Package config loads the two YAML documents a device boots from:
// device identity/role and the active therapy profile. Each document is
// unmarshalled into a plain struct, then a validate pass fills defaults
// and rejects missing required fields with a sentinel error.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bluebuzzah/firmware/internal/engine"
	"github.com/bluebuzzah/firmware/internal/faults"
	"github.com/bluebuzzah/firmware/internal/role"
)

// DefaultStartupWindowSec is the default boot-sequence advertise/scan
// window.
const DefaultStartupWindowSec = 30

// DeviceConfig is the per-device identity and role document.
type DeviceConfig struct {
	Role             role.Role `yaml:"-"`
	RoleName         string    `yaml:"role"`
	BLEName          string    `yaml:"ble_name"`
	StartupWindowSec int       `yaml:"startup_window_sec"`
	FirmwareVersion  string    `yaml:"firmware_version"`
}

// LoadDeviceConfig reads and validates a DeviceConfig from path.
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", faults.ErrConfigurationMissing, path, err)
	}
	var c DeviceConfig
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", faults.ErrConfigurationMissing, path, err)
	}
	if err := c.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *DeviceConfig) applyDefaultsAndValidate() error {
	switch c.RoleName {
	case "PRIMARY":
		c.Role = role.Primary
	case "SECONDARY":
		c.Role = role.Secondary
	default:
		return fmt.Errorf("%w: role must be PRIMARY or SECONDARY, got %q", faults.ErrConfigurationMissing, c.RoleName)
	}
	if c.BLEName == "" {
		return fmt.Errorf("%w: ble_name is required", faults.ErrConfigurationMissing)
	}
	if c.StartupWindowSec <= 0 {
		c.StartupWindowSec = DefaultStartupWindowSec
	}
	if c.FirmwareVersion == "" {
		return fmt.Errorf("%w: firmware_version is required", faults.ErrConfigurationMissing)
	}
	return nil
}

// AdvertisedIdentity returns the name this device presents on the link:
// ble_name for PRIMARY, "<ble_name>-Secondary" for SECONDARY, which is
// never advertised but used for scan matching.
func (c *DeviceConfig) AdvertisedIdentity() string {
	if c.Role == role.Secondary {
		return c.BLEName + "-Secondary"
	}
	return c.BLEName
}

// Default battery thresholds, volts.
const (
	DefaultBatteryWarningVoltage  = 3.3
	DefaultBatteryCriticalVoltage = 3.0
)

// TherapyProfile is the active stimulation configuration.
type TherapyProfile struct {
	Name                   string  `yaml:"name"`
	ActuatorType           string  `yaml:"actuator_type"`
	FrequencyHz            float64 `yaml:"frequency_hz"`
	AmplitudePercent       int     `yaml:"amplitude_percent"`
	TimeOnMs               float64 `yaml:"time_on_ms"`
	TimeOffMs              float64 `yaml:"time_off_ms"`
	JitterPercentTenths    int     `yaml:"jitter_percent"`
	NumFingers             int     `yaml:"num_fingers"`
	MirrorPattern          bool    `yaml:"mirror_pattern"`
	SessionDurationMin     float64 `yaml:"session_duration_min"`
	PatternType            string  `yaml:"pattern_type"`
	BatteryWarningVoltage  float64 `yaml:"battery_warning_voltage"`
	BatteryCriticalVoltage float64 `yaml:"battery_critical_voltage"`
}

// LoadTherapyProfile reads and validates a TherapyProfile from path.
func LoadTherapyProfile(path string) (*TherapyProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", faults.ErrConfigurationMissing, path, err)
	}
	var p TherapyProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", faults.ErrConfigurationMissing, path, err)
	}
	if err := p.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *TherapyProfile) applyDefaultsAndValidate() error {
	if p.ActuatorType == "" {
		return fmt.Errorf("%w: actuator_type is required", faults.ErrConfigurationMissing)
	}
	if p.Name == "" {
		p.Name = p.ActuatorType
	}
	if p.NumFingers <= 0 {
		return fmt.Errorf("%w: num_fingers must be positive", faults.ErrConfigurationMissing)
	}
	if p.SessionDurationMin <= 0 {
		return fmt.Errorf("%w: session_duration_min must be positive", faults.ErrConfigurationMissing)
	}
	if p.PatternType == "" {
		return fmt.Errorf("%w: pattern_type is required", faults.ErrConfigurationMissing)
	}
	if p.BatteryWarningVoltage <= 0 {
		p.BatteryWarningVoltage = DefaultBatteryWarningVoltage
	}
	if p.BatteryCriticalVoltage <= 0 {
		p.BatteryCriticalVoltage = DefaultBatteryCriticalVoltage
	}
	return nil
}

// JitterPercent converts the wire format's tenths-of-a-percent fixed
// point (e.g. 235 meaning 23.5) into a plain percentage for
// engine.GeneratorParams.
func (p *TherapyProfile) JitterPercent() float64 {
	return float64(p.JitterPercentTenths) / 10.0
}

// SessionDurationSec converts the configured minutes into the seconds
// engine.Engine.StartSession expects.
func (p *TherapyProfile) SessionDurationSec() float64 {
	return p.SessionDurationMin * 60.0
}

// ParsePatternType maps the configured pattern_type string onto the
// engine's PatternType enum. Unrecognized values fall back to rndp.
func (p *TherapyProfile) ParsePatternType() engine.PatternType {
	switch p.PatternType {
	case "sequential":
		return engine.Sequential
	case "mirrored":
		return engine.Mirrored
	default:
		return engine.Rndp
	}
}

// GeneratorParams builds the engine.GeneratorParams this profile implies.
func (p *TherapyProfile) GeneratorParams() engine.GeneratorParams {
	return engine.GeneratorParams{
		NumFingers:    p.NumFingers,
		MirrorPattern: p.MirrorPattern,
		JitterPercent: p.JitterPercent(),
		TimeOnMs:      p.TimeOnMs,
		TimeOffMs:     p.TimeOffMs,
	}
}
