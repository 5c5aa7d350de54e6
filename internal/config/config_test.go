package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluebuzzah/firmware/internal/faults"
	"github.com/bluebuzzah/firmware/internal/role"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadDeviceConfigFillsDefaultWindow(t *testing.T) {
	path := writeTemp(t, "device.yaml", `
role: PRIMARY
ble_name: bb-01
firmware_version: "1.0.0"
`)
	c, err := LoadDeviceConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Role != role.Primary {
		t.Fatalf("expected PRIMARY, got %v", c.Role)
	}
	if c.StartupWindowSec != DefaultStartupWindowSec {
		t.Fatalf("expected default window, got %d", c.StartupWindowSec)
	}
	if c.AdvertisedIdentity() != "bb-01" {
		t.Fatalf("expected bb-01, got %q", c.AdvertisedIdentity())
	}
}

func TestLoadDeviceConfigSecondaryIdentitySuffix(t *testing.T) {
	path := writeTemp(t, "device.yaml", `
role: SECONDARY
ble_name: bb-01
firmware_version: "1.0.0"
`)
	c, err := LoadDeviceConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.AdvertisedIdentity() != "bb-01-Secondary" {
		t.Fatalf("expected bb-01-Secondary, got %q", c.AdvertisedIdentity())
	}
}

func TestLoadDeviceConfigRejectsMissingBLEName(t *testing.T) {
	path := writeTemp(t, "device.yaml", `
role: PRIMARY
firmware_version: "1.0.0"
`)
	_, err := LoadDeviceConfig(path)
	if !errors.Is(err, faults.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestLoadDeviceConfigRejectsBadRole(t *testing.T) {
	path := writeTemp(t, "device.yaml", `
role: TERTIARY
ble_name: bb-01
firmware_version: "1.0.0"
`)
	_, err := LoadDeviceConfig(path)
	if !errors.Is(err, faults.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestLoadTherapyProfileFillsBatteryDefaults(t *testing.T) {
	path := writeTemp(t, "profile.yaml", `
actuator_type: vibration_motor
frequency_hz: 200
amplitude_percent: 80
time_on_ms: 500
time_off_ms: 500
jitter_percent: 235
num_fingers: 5
mirror_pattern: true
session_duration_min: 20
pattern_type: rndp
`)
	p, err := LoadTherapyProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.BatteryWarningVoltage != DefaultBatteryWarningVoltage {
		t.Fatalf("expected default warning voltage, got %v", p.BatteryWarningVoltage)
	}
	if p.BatteryCriticalVoltage != DefaultBatteryCriticalVoltage {
		t.Fatalf("expected default critical voltage, got %v", p.BatteryCriticalVoltage)
	}
	if p.JitterPercent() != 23.5 {
		t.Fatalf("expected 23.5, got %v", p.JitterPercent())
	}
	if p.SessionDurationSec() != 1200 {
		t.Fatalf("expected 1200s, got %v", p.SessionDurationSec())
	}
}

func TestLoadTherapyProfileRejectsMissingActuatorType(t *testing.T) {
	path := writeTemp(t, "profile.yaml", `
num_fingers: 5
session_duration_min: 20
pattern_type: rndp
`)
	_, err := LoadTherapyProfile(path)
	if !errors.Is(err, faults.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestParsePatternTypeFallsBackToRndp(t *testing.T) {
	p := &TherapyProfile{PatternType: "bogus"}
	if p.ParsePatternType().String() != "rndp" {
		t.Fatalf("expected rndp fallback, got %v", p.ParsePatternType())
	}
}
