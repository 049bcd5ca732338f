package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"snapproof/internal/hw/camera"
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 1 << 20

// ValidateConfigPath checks that path points at a .yaml file inside a
// configs/ directory, rejecting traversal attempts.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension, got %q", path)
	}
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return fmt.Errorf("config path must not contain traversal: %q", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory, got %q", path)
	}
	return nil
}

// CameraDeviceConfig maps one logical position to a physical device node.
type CameraDeviceConfig struct {
	Device string `yaml:"device"` // V4L2 node, e.g. /dev/video0
}

// CamerasConfig wires the two logical positions of the protocol.
type CamerasConfig struct {
	Selfie  CameraDeviceConfig `yaml:"selfie"`
	Subject CameraDeviceConfig `yaml:"subject"`
}

// CaptureConfig holds the dual-shot protocol tunables.
type CaptureConfig struct {
	StartPosition    string `yaml:"start_position"`     // "selfie" or "subject" (per habit type)
	CountdownTicks   int    `yaml:"countdown_ticks"`    // stabilization ticks after device switch
	TickIntervalMs   int    `yaml:"tick_interval_ms"`   // delay between countdown ticks (ms)
	CaptureTimeoutMs int    `yaml:"capture_timeout_ms"` // bound on a single hardware capture (ms)
	Flash            string `yaml:"flash"`              // "off", "on" or "auto"
}

// ProcessorConfig bounds the frame post-processing.
type ProcessorConfig struct {
	MaxDimension int `yaml:"max_dimension"` // longest allowed edge in pixels
	JPEGQuality  int `yaml:"jpeg_quality"`  // re-encode quality factor (1-100)
	Workers      int `yaml:"workers"`       // concurrent transforms
}

// IndicatorConfig wires the optional rig status lamps.
type IndicatorConfig struct {
	Enabled  bool `yaml:"enabled"`
	ReadyPin int  `yaml:"ready_pin"`
	BusyPin  int  `yaml:"busy_pin"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel   int    `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockHardware bool   `yaml:"mock_hardware"` // synthesize frames and mock GPIO (dev/test)
	OutputDir    string `yaml:"output_dir"`    // where CLI runs drop the two images
}

// Config aggregates all application configuration.
type Config struct {
	Cameras   CamerasConfig   `yaml:"cameras"`
	Capture   CaptureConfig   `yaml:"capture"`
	Processor ProcessorConfig `yaml:"processor"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if !cfg.Defaults.MockHardware {
		if cfg.Cameras.Selfie.Device == "" {
			return nil, fmt.Errorf("cameras.selfie.device is required unless defaults.mock_hardware is set")
		}
		if cfg.Cameras.Subject.Device == "" {
			return nil, fmt.Errorf("cameras.subject.device is required unless defaults.mock_hardware is set")
		}
	}

	if cfg.Capture.StartPosition == "" {
		cfg.Capture.StartPosition = "selfie"
	}
	if _, err := camera.ParsePosition(cfg.Capture.StartPosition); err != nil {
		return nil, fmt.Errorf("capture.start_position: %w", err)
	}
	if _, err := camera.ParseFlashMode(cfg.Capture.Flash); err != nil {
		return nil, fmt.Errorf("capture.flash: %w", err)
	}

	if cfg.Capture.CountdownTicks < 0 {
		return nil, fmt.Errorf("capture.countdown_ticks must be >= 0, got %d", cfg.Capture.CountdownTicks)
	}
	if cfg.Capture.CountdownTicks == 0 {
		cfg.Capture.CountdownTicks = 2 // device exposure/focus settling
	}
	if cfg.Capture.TickIntervalMs <= 0 {
		cfg.Capture.TickIntervalMs = 1000
	}
	if cfg.Capture.CaptureTimeoutMs <= 0 {
		cfg.Capture.CaptureTimeoutMs = 15000
	}

	if cfg.Processor.MaxDimension < 0 {
		return nil, fmt.Errorf("processor.max_dimension must be >= 0, got %d", cfg.Processor.MaxDimension)
	}
	if cfg.Processor.MaxDimension == 0 {
		cfg.Processor.MaxDimension = 1920
	}
	if cfg.Processor.JPEGQuality < 0 || cfg.Processor.JPEGQuality > 100 {
		return nil, fmt.Errorf("processor.jpeg_quality must be between 1 and 100, got %d", cfg.Processor.JPEGQuality)
	}
	if cfg.Processor.JPEGQuality == 0 {
		cfg.Processor.JPEGQuality = 80
	}
	if cfg.Processor.Workers <= 0 {
		cfg.Processor.Workers = 2
	}

	if cfg.Indicator.Enabled {
		if cfg.Indicator.ReadyPin <= 0 || cfg.Indicator.BusyPin <= 0 {
			return nil, fmt.Errorf("indicator pins must be set when indicator.enabled is true")
		}
	}

	if cfg.Defaults.OutputDir == "" {
		cfg.Defaults.OutputDir = "captures"
	}

	return &cfg, nil
}

// StartPosition returns the configured starting position.
func (c *Config) StartPosition() camera.Position {
	pos, _ := camera.ParsePosition(c.Capture.StartPosition)
	return pos
}

// FlashMode returns the configured initial flash mode.
func (c *Config) FlashMode() camera.FlashMode {
	mode, _ := camera.ParseFlashMode(c.Capture.Flash)
	return mode
}

// TickInterval returns the delay between countdown ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Capture.TickIntervalMs) * time.Millisecond
}

// CaptureTimeout returns the bound on a single hardware capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.CaptureTimeoutMs) * time.Millisecond
}

// Devices returns the position-to-device-node mapping for the gstreamer
// backend.
func (c *Config) Devices() map[camera.Position]string {
	return map[camera.Position]string{
		camera.Selfie:  c.Cameras.Selfie.Device,
		camera.Subject: c.Cameras.Subject.Device,
	}
}
