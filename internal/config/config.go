package config

import (
	"fmt"
	"strings"

	"obdscan/internal/advisor"
	"obdscan/internal/obd/mock"
	"obdscan/internal/obd/serial"
	"obdscan/internal/session"
	"obdscan/internal/simulator"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "OBDSCAN"

// Config is the effective configuration, assembled from defaults, the
// optional config file, OBDSCAN_* environment variables and flags.
type Config struct {
	Debug  bool   `mapstructure:"debug" yaml:"debug"`
	NoTUI  bool   `mapstructure:"no-tui" yaml:"no-tui"`
	Mock   bool   `mapstructure:"mock" yaml:"mock"`
	Listen string `mapstructure:"listen" yaml:"listen"`

	Session   session.Config     `mapstructure:"session" yaml:"session"`
	Device    mock.Config        `mapstructure:"device" yaml:"device"`
	Serial    serial.Config      `mapstructure:"serial" yaml:"serial"`
	Advisor   advisor.Thresholds `mapstructure:"advisor" yaml:"advisor"`
	Simulator simulator.Config   `mapstructure:"simulator" yaml:"simulator"`
}

// SetDefaults registers every key, which also makes them visible to
// AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("no-tui", false)
	v.SetDefault("mock", false)
	v.SetDefault("listen", ":8080")

	sess := session.DefaultConfig()
	v.SetDefault("session.tick_interval", sess.TickInterval)
	v.SetDefault("session.handshake_timeout", sess.HandshakeTimeout)

	dev := mock.DefaultConfig()
	v.SetDefault("device.handshake_delay", dev.HandshakeDelay)
	v.SetDefault("device.clear_delay", dev.ClearDelay)
	v.SetDefault("device.codes", dev.Codes)

	ser := serial.DefaultConfig()
	v.SetDefault("serial.port", ser.Port)
	v.SetDefault("serial.baud", ser.Baud)
	v.SetDefault("serial.read_timeout", ser.ReadTimeout)
	v.SetDefault("serial.reset_delay", ser.ResetDelay)

	th := advisor.DefaultThresholds()
	v.SetDefault("advisor.engine_temp_max", th.EngineTempMax)
	v.SetDefault("advisor.idle_rpm_min", th.IdleRPMMin)
	v.SetDefault("advisor.idle_load_max", th.IdleLoadMax)

	sim := simulator.DefaultConfig()
	for key, r := range map[string]simulator.Range{
		"rpm":             sim.RPM,
		"engine_temp":     sim.EngineTemp,
		"engine_load":     sim.EngineLoad,
		"intake_pressure": sim.IntakePressure,
	} {
		v.SetDefault("simulator."+key+".min", r.Min)
		v.SetDefault("simulator."+key+".max", r.Max)
	}
	v.SetDefault("simulator.fuel_floor", sim.FuelFloor)
	v.SetDefault("simulator.fuel_drain", sim.FuelDrain)
}

// Setup prepares v for Load: defaults, environment and, when file is not
// empty, the config file.
func Setup(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", file, err)
	}
	return nil
}

func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Session.TickInterval <= 0 {
		return fmt.Errorf("session.tick_interval must be positive, got %s", c.Session.TickInterval)
	}
	for name, r := range map[string]simulator.Range{
		"rpm":             c.Simulator.RPM,
		"engine_temp":     c.Simulator.EngineTemp,
		"engine_load":     c.Simulator.EngineLoad,
		"intake_pressure": c.Simulator.IntakePressure,
	} {
		if r.Max < r.Min {
			return fmt.Errorf("simulator.%s: max %v is below min %v", name, r.Max, r.Min)
		}
	}
	if c.Simulator.FuelDrain < 0 {
		return fmt.Errorf("simulator.fuel_drain must not be negative")
	}
	if !c.Mock && c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	return nil
}

// YAML renders the configuration for the config command.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
