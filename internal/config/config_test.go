package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"snapproof/internal/hw/camera"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd.yaml",
		"configs/../../../etc/shadow.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
cameras:
  selfie:
    device: /dev/video0
  subject:
    device: /dev/video2
capture:
  start_position: subject
  countdown_ticks: 3
  tick_interval_ms: 500
  capture_timeout_ms: 8000
  flash: auto
processor:
  max_dimension: 1280
  jpeg_quality: 90
  workers: 4
indicator:
  enabled: true
  ready_pin: 17
  busy_pin: 27
defaults:
  debug_level: 2
  mock_hardware: false
  output_dir: /tmp/shots
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cameras.Selfie.Device != "/dev/video0" {
		t.Errorf("cameras.selfie.device = %q, want /dev/video0", cfg.Cameras.Selfie.Device)
	}
	if cfg.Cameras.Subject.Device != "/dev/video2" {
		t.Errorf("cameras.subject.device = %q, want /dev/video2", cfg.Cameras.Subject.Device)
	}
	if cfg.Capture.StartPosition != "subject" {
		t.Errorf("capture.start_position = %q, want subject", cfg.Capture.StartPosition)
	}
	if cfg.Capture.CountdownTicks != 3 {
		t.Errorf("capture.countdown_ticks = %d, want 3", cfg.Capture.CountdownTicks)
	}
	if cfg.Processor.MaxDimension != 1280 {
		t.Errorf("processor.max_dimension = %d, want 1280", cfg.Processor.MaxDimension)
	}
	if cfg.Processor.JPEGQuality != 90 {
		t.Errorf("processor.jpeg_quality = %d, want 90", cfg.Processor.JPEGQuality)
	}
	if !cfg.Indicator.Enabled {
		t.Error("indicator.enabled should be true")
	}
	if cfg.Defaults.OutputDir != "/tmp/shots" {
		t.Errorf("defaults.output_dir = %q, want /tmp/shots", cfg.Defaults.OutputDir)
	}
}

func TestLoad_MissingDevices(t *testing.T) {
	yaml := `
cameras:
  selfie:
    device: /dev/video0
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing subject device, got nil")
	}
}

func TestLoad_MockHardwareSkipsDeviceCheck(t *testing.T) {
	yaml := `
defaults:
  mock_hardware: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err != nil {
		t.Errorf("mock_hardware should not require device nodes, got: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
defaults:
  mock_hardware: true
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.StartPosition != "selfie" {
		t.Errorf("default start_position = %q, want selfie", cfg.Capture.StartPosition)
	}
	if cfg.Capture.CountdownTicks != 2 {
		t.Errorf("default countdown_ticks = %d, want 2", cfg.Capture.CountdownTicks)
	}
	if cfg.Capture.TickIntervalMs != 1000 {
		t.Errorf("default tick_interval_ms = %d, want 1000", cfg.Capture.TickIntervalMs)
	}
	if cfg.Capture.CaptureTimeoutMs != 15000 {
		t.Errorf("default capture_timeout_ms = %d, want 15000", cfg.Capture.CaptureTimeoutMs)
	}
	if cfg.Processor.MaxDimension != 1920 {
		t.Errorf("default max_dimension = %d, want 1920", cfg.Processor.MaxDimension)
	}
	if cfg.Processor.JPEGQuality != 80 {
		t.Errorf("default jpeg_quality = %d, want 80", cfg.Processor.JPEGQuality)
	}
	if cfg.Processor.Workers != 2 {
		t.Errorf("default workers = %d, want 2", cfg.Processor.Workers)
	}
	if cfg.Defaults.OutputDir != "captures" {
		t.Errorf("default output_dir = %q, want captures", cfg.Defaults.OutputDir)
	}
}

func TestLoad_InvalidStartPosition(t *testing.T) {
	yaml := `
capture:
  start_position: sideways
defaults:
  mock_hardware: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid start_position, got nil")
	}
}

func TestLoad_InvalidFlash(t *testing.T) {
	yaml := `
capture:
  flash: strobe
defaults:
  mock_hardware: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid flash mode, got nil")
	}
}

func TestLoad_NegativeCountdown(t *testing.T) {
	yaml := `
capture:
  countdown_ticks: -1
defaults:
  mock_hardware: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative countdown_ticks, got nil")
	}
}

func TestLoad_JPEGQualityOutOfRange(t *testing.T) {
	yaml := `
processor:
  jpeg_quality: 101
defaults:
  mock_hardware: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for jpeg_quality > 100, got nil")
	}
}

func TestLoad_IndicatorPinsRequired(t *testing.T) {
	yaml := `
indicator:
  enabled: true
defaults:
  mock_hardware: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for enabled indicator without pins, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "cameras: [not: valid")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "configs", "absent.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_HelperMethods(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StartPosition() != camera.Subject {
		t.Errorf("StartPosition() = %v, want subject", cfg.StartPosition())
	}
	if cfg.FlashMode() != camera.FlashAuto {
		t.Errorf("FlashMode() = %v, want auto", cfg.FlashMode())
	}
	if cfg.TickInterval() != 500*time.Millisecond {
		t.Errorf("TickInterval() = %v, want 500ms", cfg.TickInterval())
	}
	if cfg.CaptureTimeout() != 8*time.Second {
		t.Errorf("CaptureTimeout() = %v, want 8s", cfg.CaptureTimeout())
	}

	devs := cfg.Devices()
	if devs[camera.Selfie] != "/dev/video0" || devs[camera.Subject] != "/dev/video2" {
		t.Errorf("Devices() = %v, want both nodes mapped", devs)
	}
}
