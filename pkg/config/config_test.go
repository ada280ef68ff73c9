package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, 7, cfg.Keys.Count)
	assert.Equal(t, "0123456", cfg.Keys.Chars)
	assert.Equal(t, 6, cfg.Keys.ModifierIndex)
	assert.Equal(t, "left_ctrl", cfg.Keys.Modifier)
	assert.Equal(t, float32(2.5), cfg.Calibration.StrokeMM)
	assert.Equal(t, float32(1.0), cfg.Calibration.ActivationMM)
	assert.Equal(t, 5*time.Second, cfg.Calibration.Settle)
	assert.Equal(t, time.Millisecond, cfg.Timing.ResolvePeriod)
	assert.Equal(t, 10*time.Millisecond, cfg.Diagnostics.TelemetryInterval)
	assert.Equal(t, 10*time.Second, cfg.Diagnostics.HeartbeatTimeout)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, uint8(10), cfg.Analog.Resolution)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeFile(t, "nakuru.yaml", `
keys:
  count: 4
  chars: "dfjk"
  modifier_index: -1

calibration:
  stroke_mm: 4.0
  activation_mm: 1.5
  settle: 3s

timing:
  resolve_period: 2ms
  scan_interval: 50us

diagnostics:
  telemetry_interval: 20ms
  heartbeat_timeout: 5s
  heartbeat_interval: 1s
  strict_frames: true

serial:
  port: "/dev/ttyGS0"

analog:
  spi_port: "/dev/spidev0.0"
  channels: [0, 1, 4, 5]

mqtt:
  broker: "tcp://localhost:1883"
  topic: "lab/keypad"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Keys.Count)
	assert.Equal(t, "dfjk", cfg.Keys.Chars)
	assert.Equal(t, -1, cfg.Keys.ModifierIndex)
	assert.Equal(t, float32(4.0), cfg.Calibration.StrokeMM)
	assert.Equal(t, float32(1.5), cfg.Calibration.ActivationMM)
	assert.Equal(t, 3*time.Second, cfg.Calibration.Settle)
	assert.Equal(t, 2*time.Millisecond, cfg.Timing.ResolvePeriod)
	assert.Equal(t, 50*time.Microsecond, cfg.Timing.ScanInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.Diagnostics.TelemetryInterval)
	assert.True(t, cfg.Diagnostics.StrictFrames)
	assert.Equal(t, "/dev/ttyGS0", cfg.Serial.Port)
	assert.Equal(t, "/dev/spidev0.0", cfg.Analog.SPIPort)
	assert.Equal(t, []int{0, 1, 4, 5}, cfg.Analog.Channels)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "lab/keypad", cfg.MQTT.Topic)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeFile(t, "nakuru.toml", `
[keys]
count = 3
chars = "abc"
modifier_index = 0
modifier = "shift"

[calibration]
settle = "2s"

[mock]
top = 700
bottom = 300
press_period = "2s"
press_duration = "200ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Keys.Count)
	assert.Equal(t, "shift", cfg.Keys.Modifier)
	assert.Equal(t, 0, cfg.Keys.ModifierIndex)
	assert.Equal(t, 2*time.Second, cfg.Calibration.Settle)
	assert.Equal(t, uint16(700), cfg.Mock.Top)
	assert.Equal(t, uint16(300), cfg.Mock.Bottom)
	assert.Equal(t, 200*time.Millisecond, cfg.Mock.PressDuration)
	assert.Equal(t, float32(2.5), cfg.Calibration.StrokeMM) // default
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "invalid: yaml: content: [")

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeFile(t, "bad.toml", "[keys\ncount = ")

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	path := writeFile(t, "partial.yaml", `
serial:
  port: "/dev/ttyUSB1"
timing:
  resolve_period: 0s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.Baud)                    // default
	assert.Equal(t, time.Millisecond, cfg.Timing.ResolvePeriod) // zero restored
	assert.Equal(t, 7, cfg.Keys.Count)                          // default
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("NAKURU_SERIAL_PORT", "/dev/ttyACM9")
	t.Setenv("NAKURU_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM9", cfg.Serial.Port)

	path := writeFile(t, "env.yaml", "keys:\n  count: 7\n")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM9", cfg.Serial.Port)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func TestSave(t *testing.T) {
	for _, name := range []string{"saved.yaml", "saved.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Serial.Port = "/dev/ttyUSB0"
			cfg.Keys.Chars = "asdfghj"
			cfg.Calibration.Settle = 7 * time.Second
			cfg.Analog.Channels = []int{7, 6, 5, 4, 3, 2, 1}

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errs   int
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "no modifier", modify: func(c *Config) { c.Keys.ModifierIndex = -1; c.Keys.Modifier = "" }},
		{name: "zero keys", modify: func(c *Config) { c.Keys.Count = 0; c.Keys.ModifierIndex = -1 }, errs: 1},
		{name: "too few chars", modify: func(c *Config) { c.Keys.Chars = "01" }, errs: 1},
		{name: "modifier out of range", modify: func(c *Config) { c.Keys.ModifierIndex = 7 }, errs: 1},
		{name: "activation past stroke", modify: func(c *Config) { c.Calibration.ActivationMM = 3 }, errs: 1},
		{name: "bad geometry", modify: func(c *Config) { c.Calibration.StrokeMM = 0; c.Calibration.ActivationMM = -1 }, errs: 2},
		{name: "heartbeat too slow", modify: func(c *Config) { c.Diagnostics.HeartbeatInterval = 20 * time.Second }, errs: 1},
		{name: "channels mismatch", modify: func(c *Config) { c.Analog.Channels = []int{0, 1} }, errs: 1},
		{name: "resolution", modify: func(c *Config) { c.Analog.Resolution = 17 }, errs: 1},
		{name: "mock inverted", modify: func(c *Config) { c.Mock.Top, c.Mock.Bottom = 300, 600 }, errs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errs == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Len(t, multierr.Errors(err), tt.errs, "%v", err)
		})
	}
}
