package simulator

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"obdscan/internal/models"
)

// Rand is the random source behind the simulated readings. *rand.Rand
// satisfies it; tests pass a fixed sequence.
type Rand interface {
	Float64() float64
}

// Rule describes how a single parameter evolves on every tick.
type Rule struct {
	// Min and Max bound the uniform draw [Min, Max).
	Min, Max float64
	// FullScale maps a value to its percentage: value / FullScale * 100.
	FullScale float64
	// Drain makes the rule monotone: value = max(Min, previous percentage - Drain).
	// Max is ignored when Drain is set.
	Drain float64
}

func (r Rule) next(rnd Rand, prev models.VehicleParameter) (value, pct float64) {
	if r.Drain > 0 {
		value = math.Max(r.Min, prev.Pct()-r.Drain)
	} else {
		value = r.Min + rnd.Float64()*(r.Max-r.Min)
	}
	if r.FullScale > 0 {
		pct = value / r.FullScale * 100
	}
	return value, clamp(pct)
}

// Range is a half-open interval for a uniform draw.
type Range struct {
	Min float64 `mapstructure:"min" yaml:"min"`
	Max float64 `mapstructure:"max" yaml:"max"`
}

// Config carries the tunable ranges. The defaults are demonstration values,
// not calibrated sensor ranges.
type Config struct {
	RPM            Range   `mapstructure:"rpm" yaml:"rpm"`
	EngineTemp     Range   `mapstructure:"engine_temp" yaml:"engine_temp"`
	EngineLoad     Range   `mapstructure:"engine_load" yaml:"engine_load"`
	IntakePressure Range   `mapstructure:"intake_pressure" yaml:"intake_pressure"`
	FuelFloor      float64 `mapstructure:"fuel_floor" yaml:"fuel_floor"`
	FuelDrain      float64 `mapstructure:"fuel_drain" yaml:"fuel_drain"`
}

func DefaultConfig() Config {
	return Config{
		RPM:            Range{Min: 800, Max: 1000},
		EngineTemp:     Range{Min: 88, Max: 96},
		EngineLoad:     Range{Min: 15, Max: 25},
		IntakePressure: Range{Min: 25, Max: 35},
		FuelFloor:      65,
		FuelDrain:      0.01,
	}
}

// Rules builds the label lookup table. Labels without a rule are left as is.
func (c Config) Rules() map[string]Rule {
	return map[string]Rule{
		models.LabelRPM:            {Min: c.RPM.Min, Max: c.RPM.Max, FullScale: 6000},
		models.LabelEngineTemp:     {Min: c.EngineTemp.Min, Max: c.EngineTemp.Max, FullScale: 125},
		models.LabelEngineLoad:     {Min: c.EngineLoad.Min, Max: c.EngineLoad.Max, FullScale: 100},
		models.LabelIntakePressure: {Min: c.IntakePressure.Min, Max: c.IntakePressure.Max, FullScale: 100},
		models.LabelFuelLevel:      {Min: c.FuelFloor, Drain: c.FuelDrain, FullScale: 100},
	}
}

// Simulator stands in for a device poller and mutates the parameter set
// with random readings.
type Simulator struct {
	mu    sync.Mutex
	rnd   Rand
	rules map[string]Rule
}

// New creates a Simulator. A nil rnd gets a time-seeded source.
func New(cfg Config, rnd Rand) *Simulator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{
		rnd:   rnd,
		rules: cfg.Rules(),
	}
}

// Step returns the next reading of every parameter. The input is not modified.
func (s *Simulator) Step(params []models.VehicleParameter) []models.VehicleParameter {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.VehicleParameter, len(params))
	for i, p := range params {
		out[i] = p
		rule, ok := s.rules[p.Label]
		if !ok {
			if p.Percentage != nil {
				out[i].Percentage = models.Float64Ptr(clamp(*p.Percentage))
			}
			continue
		}
		value, pct := rule.next(s.rnd, p)
		out[i].Value = strconv.Itoa(int(math.Round(value)))
		out[i].Percentage = models.Float64Ptr(pct)
	}
	return out
}

// Update implements the session updater. The simulator never fails.
func (s *Simulator) Update(_ context.Context, params []models.VehicleParameter) ([]models.VehicleParameter, error) {
	return s.Step(params), nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}
