package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Keys        KeysConfig        `yaml:"keys" toml:"keys"`
	Calibration CalibrationConfig `yaml:"calibration" toml:"calibration"`
	Timing      TimingConfig      `yaml:"timing" toml:"timing"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" toml:"diagnostics"`
	Serial      SerialConfig      `yaml:"serial" toml:"serial"`
	Analog      AnalogConfig      `yaml:"analog" toml:"analog"`
	HID         HIDConfig         `yaml:"hid" toml:"hid"`
	MQTT        MQTTConfig        `yaml:"mqtt" toml:"mqtt"`
	Mock        MockConfig        `yaml:"mock" toml:"mock"`
}

// KeysConfig describes the keys and what they type.
type KeysConfig struct {
	Count         int    `yaml:"count" toml:"count"`
	Chars         string `yaml:"chars" toml:"chars"`                   // character typed by key i
	ModifierIndex int    `yaml:"modifier_index" toml:"modifier_index"` // key sending Modifier instead, -1 for none
	Modifier      string `yaml:"modifier" toml:"modifier"`
}

// CalibrationConfig contains the switch geometry and settle time.
type CalibrationConfig struct {
	StrokeMM     float32       `yaml:"stroke_mm" toml:"stroke_mm"`
	ActivationMM float32       `yaml:"activation_mm" toml:"activation_mm"` // actuation point above bottom dead
	Settle       time.Duration `yaml:"settle" toml:"settle"`
}

// TimingConfig contains the scheduling periods.
type TimingConfig struct {
	ResolvePeriod   time.Duration `yaml:"resolve_period" toml:"resolve_period"`
	ScanInterval    time.Duration `yaml:"scan_interval" toml:"scan_interval"`
	ScanReportAfter time.Duration `yaml:"scan_report_after" toml:"scan_report_after"`
}

// DiagnosticsConfig contains the diagnostics channel parameters.
type DiagnosticsConfig struct {
	TelemetryInterval time.Duration `yaml:"telemetry_interval" toml:"telemetry_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout" toml:"heartbeat_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"` // host side
	OutputBuffer      int           `yaml:"output_buffer" toml:"output_buffer"`
	StrictFrames      bool          `yaml:"strict_frames" toml:"strict_frames"` // host side schema validation
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port" toml:"port"`
	Baud int    `yaml:"baud" toml:"baud"`
}

// AnalogConfig describes the SPI converter.
type AnalogConfig struct {
	SPIPort    string  `yaml:"spi_port" toml:"spi_port"` // empty for the first available port
	SpeedHz    int64   `yaml:"speed_hz" toml:"speed_hz"`
	VRef       float32 `yaml:"vref" toml:"vref"`
	Resolution uint8   `yaml:"resolution" toml:"resolution"` // bits
	Channels   []int   `yaml:"channels" toml:"channels"`     // converter input per key, empty for 0..n-1
}

// HIDConfig contains the keyboard output device.
type HIDConfig struct {
	Device string `yaml:"device" toml:"device"`
}

// MQTTConfig contains the telemetry bridge configuration.
type MQTTConfig struct {
	Broker        string        `yaml:"broker" toml:"broker"`
	Topic         string        `yaml:"topic" toml:"topic"`
	ClientID      string        `yaml:"client_id" toml:"client_id"`
	FrameInterval time.Duration `yaml:"frame_interval" toml:"frame_interval"` // minimum spacing of published frames
}

// MockConfig contains the simulated keypad configuration.
type MockConfig struct {
	Top           uint16        `yaml:"top" toml:"top"`       // level of a released key
	Bottom        uint16        `yaml:"bottom" toml:"bottom"` // level of a bottomed out key
	Noise         uint16        `yaml:"noise" toml:"noise"`
	PressPeriod   time.Duration `yaml:"press_period" toml:"press_period"`
	PressDuration time.Duration `yaml:"press_duration" toml:"press_duration"`
	Seed          int64         `yaml:"seed" toml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Keys: KeysConfig{
			Count:         7,
			Chars:         "0123456",
			ModifierIndex: 6,
			Modifier:      "left_ctrl",
		},
		Calibration: CalibrationConfig{
			StrokeMM:     2.5,
			ActivationMM: 1.0,
			Settle:       5 * time.Second,
		},
		Timing: TimingConfig{
			ResolvePeriod:   time.Millisecond,
			ScanInterval:    100 * time.Microsecond,
			ScanReportAfter: 5 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			TelemetryInterval: 10 * time.Millisecond,
			HeartbeatTimeout:  10 * time.Second,
			HeartbeatInterval: 3 * time.Second,
			OutputBuffer:      64,
		},
		Serial: SerialConfig{
			Port: "/dev/ttyACM0",
			Baud: 115200,
		},
		Analog: AnalogConfig{
			SpeedHz:    1000000,
			VRef:       3.3,
			Resolution: 10,
		},
		HID: HIDConfig{
			Device: "/dev/hidg0",
		},
		MQTT: MQTTConfig{
			Topic:         "nakuru",
			ClientID:      "nakurumon",
			FrameInterval: 100 * time.Millisecond,
		},
		Mock: MockConfig{
			Top:           620,
			Bottom:        380,
			Noise:         3,
			PressPeriod:   1400 * time.Millisecond,
			PressDuration: 150 * time.Millisecond,
			Seed:          1,
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist or fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isTOML(filename) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()
	cfg.ApplyEnv()

	return cfg, nil
}

// Save saves the configuration, as TOML if filename ends in .toml and as
// YAML otherwise.
func (c *Config) Save(filename string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(filename) {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides device paths from NAKURU_SERIAL_PORT, NAKURU_HID_DEVICE,
// NAKURU_SPI_PORT and NAKURU_MQTT_BROKER when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("NAKURU_SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("NAKURU_HID_DEVICE"); v != "" {
		c.HID.Device = v
	}
	if v := os.Getenv("NAKURU_SPI_PORT"); v != "" {
		c.Analog.SPIPort = v
	}
	if v := os.Getenv("NAKURU_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
}

// Validate reports every inconsistent setting.
func (c *Config) Validate() error {
	var err error

	if c.Keys.Count <= 0 {
		err = multierr.Append(err, fmt.Errorf("keys.count must be positive, got %d", c.Keys.Count))
	}
	if n := len([]rune(c.Keys.Chars)); n < c.Keys.Count {
		err = multierr.Append(err, fmt.Errorf("keys.chars has %d characters for %d keys", n, c.Keys.Count))
	}
	if c.Keys.ModifierIndex >= c.Keys.Count {
		err = multierr.Append(err, fmt.Errorf("keys.modifier_index %d out of range", c.Keys.ModifierIndex))
	}
	if c.Keys.ModifierIndex >= 0 && c.Keys.Modifier == "" {
		err = multierr.Append(err, errors.New("keys.modifier is required with keys.modifier_index"))
	}

	if c.Calibration.StrokeMM <= 0 {
		err = multierr.Append(err, fmt.Errorf("calibration.stroke_mm must be positive, got %v", c.Calibration.StrokeMM))
	}
	if c.Calibration.ActivationMM < 0 || c.Calibration.ActivationMM > c.Calibration.StrokeMM {
		err = multierr.Append(err, fmt.Errorf("calibration.activation_mm %v outside the stroke", c.Calibration.ActivationMM))
	}
	if c.Calibration.Settle < 0 {
		err = multierr.Append(err, errors.New("calibration.settle must not be negative"))
	}

	if c.Timing.ResolvePeriod <= 0 {
		err = multierr.Append(err, errors.New("timing.resolve_period must be positive"))
	}

	if c.Diagnostics.HeartbeatInterval >= c.Diagnostics.HeartbeatTimeout {
		err = multierr.Append(err, fmt.Errorf("diagnostics.heartbeat_interval %v must be shorter than heartbeat_timeout %v",
			c.Diagnostics.HeartbeatInterval, c.Diagnostics.HeartbeatTimeout))
	}

	if c.Analog.Resolution == 0 || c.Analog.Resolution > 16 {
		err = multierr.Append(err, fmt.Errorf("analog.resolution must be 1..16 bits, got %d", c.Analog.Resolution))
	}
	if c.Analog.VRef <= 0 {
		err = multierr.Append(err, errors.New("analog.vref must be positive"))
	}
	if n := len(c.Analog.Channels); n != 0 && n != c.Keys.Count {
		err = multierr.Append(err, fmt.Errorf("analog.channels has %d entries for %d keys", n, c.Keys.Count))
	}

	if c.Mock.Top <= c.Mock.Bottom {
		err = multierr.Append(err, fmt.Errorf("mock.top %d must be above mock.bottom %d", c.Mock.Top, c.Mock.Bottom))
	}
	if c.Mock.PressDuration > c.Mock.PressPeriod {
		err = multierr.Append(err, errors.New("mock.press_duration must not exceed press_period"))
	}

	return err
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Keys.Count == 0 {
		c.Keys.Count = def.Keys.Count
	}
	if c.Keys.Chars == "" {
		c.Keys.Chars = def.Keys.Chars
	}

	if c.Calibration.StrokeMM == 0 {
		c.Calibration.StrokeMM = def.Calibration.StrokeMM
	}
	if c.Calibration.Settle == 0 {
		c.Calibration.Settle = def.Calibration.Settle
	}

	if c.Timing.ResolvePeriod == 0 {
		c.Timing.ResolvePeriod = def.Timing.ResolvePeriod
	}
	if c.Timing.ScanReportAfter == 0 {
		c.Timing.ScanReportAfter = def.Timing.ScanReportAfter
	}

	if c.Diagnostics.TelemetryInterval == 0 {
		c.Diagnostics.TelemetryInterval = def.Diagnostics.TelemetryInterval
	}
	if c.Diagnostics.HeartbeatTimeout == 0 {
		c.Diagnostics.HeartbeatTimeout = def.Diagnostics.HeartbeatTimeout
	}
	if c.Diagnostics.HeartbeatInterval == 0 {
		c.Diagnostics.HeartbeatInterval = def.Diagnostics.HeartbeatInterval
	}
	if c.Diagnostics.OutputBuffer == 0 {
		c.Diagnostics.OutputBuffer = def.Diagnostics.OutputBuffer
	}

	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Analog.SpeedHz == 0 {
		c.Analog.SpeedHz = def.Analog.SpeedHz
	}
	if c.Analog.VRef == 0 {
		c.Analog.VRef = def.Analog.VRef
	}
	if c.Analog.Resolution == 0 {
		c.Analog.Resolution = def.Analog.Resolution
	}

	if c.HID.Device == "" {
		c.HID.Device = def.HID.Device
	}

	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}

	if c.Mock.PressPeriod == 0 {
		c.Mock.PressPeriod = def.Mock.PressPeriod
	}
	if c.Mock.PressDuration == 0 {
		c.Mock.PressDuration = def.Mock.PressDuration
	}
}

func isTOML(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".toml")
}
