package models

import (
	"strconv"
	"strings"
)

// Parameter labels. They double as the keys of the parameter set.
const (
	LabelRPM            = "RPM"
	LabelSpeed          = "Velocidad"
	LabelEngineTemp     = "Temp. Motor"
	LabelEngineLoad     = "Carga Motor"
	LabelIntakePressure = "Presión Admisión"
	LabelFuelLevel      = "Nivel Combustible"
)

// Icon is a display hint for a parameter.
type Icon string

const (
	IconGauge       Icon = "gauge"
	IconThermometer Icon = "thermometer"
	IconDroplets    Icon = "droplets"
	IconActivity    Icon = "activity"
	IconZap         Icon = "zap"
	IconWind        Icon = "wind"
)

// VehicleParameter is one live sensor reading. Value is kept as the display
// string; Percentage, when set, is in [0,100].
type VehicleParameter struct {
	Label      string   `json:"label"`
	Value      string   `json:"value"`
	Unit       string   `json:"unit"`
	Icon       Icon     `json:"icon"`
	Percentage *float64 `json:"percentage,omitempty"`
	Color      string   `json:"color,omitempty"`
}

// Number parses Value. ok is false for empty or non-numeric values.
func (p VehicleParameter) Number() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Pct returns the percentage or 0 when unset.
func (p VehicleParameter) Pct() float64 {
	if p.Percentage == nil {
		return 0
	}
	return *p.Percentage
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// FindParameter returns the parameter with the given label.
func FindParameter(params []VehicleParameter, label string) (VehicleParameter, bool) {
	for _, p := range params {
		if p.Label == label {
			return p, true
		}
	}
	return VehicleParameter{}, false
}
