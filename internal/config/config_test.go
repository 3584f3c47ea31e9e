package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, Setup(v, ""))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.False(t, cfg.Mock)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.Session.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, 2*time.Second, cfg.Device.HandshakeDelay)
	assert.Equal(t, 2*time.Second, cfg.Device.ClearDelay)
	assert.Equal(t, []string{"P0301", "P0420", "P0171"}, cfg.Device.Codes)
	assert.Equal(t, 38400, cfg.Serial.Baud)
	assert.Equal(t, 100.0, cfg.Advisor.EngineTempMax)
	assert.Equal(t, 900.0, cfg.Advisor.IdleRPMMin)
	assert.Equal(t, 15.0, cfg.Advisor.IdleLoadMax)
	assert.Equal(t, 800.0, cfg.Simulator.RPM.Min)
	assert.Equal(t, 1000.0, cfg.Simulator.RPM.Max)
	assert.Equal(t, 65.0, cfg.Simulator.FuelFloor)
	assert.Equal(t, 0.01, cfg.Simulator.FuelDrain)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("OBDSCAN_MOCK", "true")
	t.Setenv("OBDSCAN_SESSION_TICK_INTERVAL", "500ms")
	t.Setenv("OBDSCAN_ADVISOR_ENGINE_TEMP_MAX", "105")
	t.Setenv("OBDSCAN_NO_TUI", "true")
	t.Setenv("OBDSCAN_DEVICE_CODES", "P0128,P0300")

	v := viper.New()
	require.NoError(t, Setup(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.True(t, cfg.Mock)
	assert.True(t, cfg.NoTUI)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.TickInterval)
	assert.Equal(t, 105.0, cfg.Advisor.EngineTempMax)
	assert.Equal(t, []string{"P0128", "P0300"}, cfg.Device.Codes)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obdscan.yaml")
	content := `
mock: true
listen: 127.0.0.1:9090
device:
  handshake_delay: 1s
  codes: [P0442]
simulator:
  rpm:
    min: 700
    max: 750
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	require.NoError(t, Setup(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, time.Second, cfg.Device.HandshakeDelay)
	assert.Equal(t, 2*time.Second, cfg.Device.ClearDelay)
	assert.Equal(t, []string{"P0442"}, cfg.Device.Codes)
	assert.Equal(t, 700.0, cfg.Simulator.RPM.Min)
	assert.Equal(t, 750.0, cfg.Simulator.RPM.Max)
	assert.Equal(t, 88.0, cfg.Simulator.EngineTemp.Min)
}

func TestSetupMissingFile(t *testing.T) {
	err := Setup(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"zero tick", "session.tick_interval", "0s"},
		{"inverted range", "simulator.engine_load.max", 10},
		{"negative drain", "simulator.fuel_drain", -1},
		{"bad baud", "serial.baud", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			require.NoError(t, Setup(v, ""))
			v.Set(tt.key, tt.val)

			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	v := viper.New()
	require.NoError(t, Setup(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)

	data, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick_interval: 2s")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
}
