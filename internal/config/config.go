package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Camera backends.
const (
	CameraOpenCV  = "opencv"  // real device through OpenCV
	CameraPattern = "pattern" // synthetic frames, no device needed
)

// CameraConfig selects and sizes the capture device.
type CameraConfig struct {
	Type   string `yaml:"type"`   // "opencv" or "pattern"
	Index  int    `yaml:"index"`  // OpenCV device index
	Device string `yaml:"device"` // V4L2 node used for probing, e.g. /dev/video0
	Width  int    `yaml:"width"`  // requested width in px, 0 = device default
	Height int    `yaml:"height"` // requested height in px, 0 = device default
}

// OutputConfig describes where and how snapshots are written.
type OutputConfig struct {
	Folder      string `yaml:"folder"`
	Name        string `yaml:"name"`         // file name prefix
	JPEGQuality int    `yaml:"jpeg_quality"` // 1-100
}

// CaptureConfig holds the capture loop options.
type CaptureConfig struct {
	Crosshair bool `yaml:"crosshair"`
	AddPose   bool `yaml:"add_pose"`    // attitude/altitude in file names, needs hardware.raspi
	KeyWaitMs int  `yaml:"key_wait_ms"` // bounded wait of the key poll
}

// HardwareConfig is only used when running on the Raspberry Pi.
type HardwareConfig struct {
	Raspi        bool   `yaml:"raspi"`
	DriverModule string `yaml:"driver_module"` // kernel module binding the camera, e.g. bcm2835-v4l2
	MockGPIO     bool   `yaml:"mock_gpio"`
	ShutterPin   int    `yaml:"shutter_pin"` // push button (BCM), active LOW. 0 = not used.
	LEDPin       int    `yaml:"led_pin"`     // status LED (BCM). 0 = not used.
}

// TelemetryConfig describes the MAVLink link to the flight controller.
type TelemetryConfig struct {
	Device         string `yaml:"device"`
	Baud           int    `yaml:"baud"`
	ReadyTimeoutMs int    `yaml:"ready_timeout_ms"`
	StreamRateHz   int    `yaml:"stream_rate_hz"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
// It is resolved once at startup and passed by value afterwards.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Output    OutputConfig    `yaml:"output"`
	Capture   CaptureConfig   `yaml:"capture"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			Type:   CameraOpenCV,
			Device: "/dev/video0",
		},
		Output: OutputConfig{
			Folder:      ".",
			Name:        "snapshot",
			JPEGQuality: 95,
		},
		Capture: CaptureConfig{
			KeyWaitMs: 1,
		},
		Hardware: HardwareConfig{
			DriverModule: "bcm2835-v4l2",
		},
		Telemetry: TelemetryConfig{
			Device:         "/dev/ttyACM0", // Raspberry Pi USB to Pixhawk
			Baud:           115200,
			ReadyTimeoutMs: 30000,
			StreamRateHz:   10,
		},
		Defaults: DefaultsConfig{
			DebugLevel: 1,
		},
	}
}

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 << 10

// ValidateConfigPath rejects empty paths, non-YAML extensions and paths
// climbing out of the working tree with "..".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return errors.Errorf("config file must be .yaml or .yml, got %q", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return errors.Errorf("config path must not contain '..': %q", path)
		}
	}
	return nil
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Read reads a YAML file on top of the defaults without validating it.
// Callers that apply further overrides validate the final result themselves.
func Read(path string) (Config, error) {
	cfg := Default()

	if err := ValidateConfigPath(path); err != nil {
		return cfg, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return cfg, errors.Wrap(err, "stat config file")
	}
	if info.Size() > MaxConfigFileBytes {
		return cfg, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshal yaml")
	}

	// Empty strings in the file mean "use default"
	def := Default()
	if cfg.Camera.Type == "" {
		cfg.Camera.Type = def.Camera.Type
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = def.Camera.Device
	}
	if cfg.Output.Folder == "" {
		cfg.Output.Folder = def.Output.Folder
	}
	if cfg.Output.Name == "" {
		cfg.Output.Name = def.Output.Name
	}
	if cfg.Output.JPEGQuality == 0 {
		cfg.Output.JPEGQuality = def.Output.JPEGQuality
	}
	if cfg.Capture.KeyWaitMs <= 0 {
		cfg.Capture.KeyWaitMs = def.Capture.KeyWaitMs
	}
	if cfg.Hardware.DriverModule == "" {
		cfg.Hardware.DriverModule = def.Hardware.DriverModule
	}
	if cfg.Telemetry.Device == "" {
		cfg.Telemetry.Device = def.Telemetry.Device
	}
	if cfg.Telemetry.ReadyTimeoutMs <= 0 {
		cfg.Telemetry.ReadyTimeoutMs = def.Telemetry.ReadyTimeoutMs
	}
	if cfg.Telemetry.StreamRateHz <= 0 {
		cfg.Telemetry.StreamRateHz = def.Telemetry.StreamRateHz
	}
	return cfg, nil
}

// Validate checks the configuration for values the capture loop cannot work with.
func (c Config) Validate() error {
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return errors.Errorf("camera width/height must be >= 0, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.Index < 0 {
		return errors.Errorf("camera.index must be >= 0, got %d", c.Camera.Index)
	}
	switch c.Camera.Type {
	case CameraOpenCV, CameraPattern:
	default:
		return errors.Errorf("unsupported camera type: %q", c.Camera.Type)
	}
	if c.Output.Name == "" {
		return errors.New("output.name is required")
	}
	if c.Output.Folder == "" {
		return errors.New("output.folder is required")
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return errors.Errorf("jpeg_quality must be between 1 and 100, got %d", c.Output.JPEGQuality)
	}
	if c.Capture.AddPose && !c.Hardware.Raspi {
		return errors.New("add_pose requires raspi (telemetry is only available on the embedded target)")
	}
	if c.Hardware.ShutterPin < 0 || c.Hardware.LEDPin < 0 {
		return errors.Errorf("GPIO pins must be >= 0, got shutter=%d led=%d", c.Hardware.ShutterPin, c.Hardware.LEDPin)
	}
	if c.Capture.AddPose && c.Telemetry.Baud <= 0 {
		return errors.Errorf("telemetry.baud must be > 0, got %d", c.Telemetry.Baud)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return errors.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// PoseEnabled reports whether file names carry attitude/altitude.
func (c Config) PoseEnabled() bool {
	return c.Hardware.Raspi && c.Capture.AddPose
}

// CustomResolution reports whether a resolution must be requested from the device.
func (c Config) CustomResolution() bool {
	return c.Camera.Width > 0 && c.Camera.Height > 0
}

// KeyWait returns the bounded wait of the key poll.
func (c Config) KeyWait() time.Duration {
	return time.Duration(c.Capture.KeyWaitMs) * time.Millisecond
}

// ReadyTimeout returns how long to wait for the first telemetry messages.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Telemetry.ReadyTimeoutMs) * time.Millisecond
}
