package advisor

import (
	"obdscan/internal/models"
)

// Thresholds for the parameter rules. The defaults are demonstration
// values, not calibrated sensor limits.
type Thresholds struct {
	EngineTempMax float64 `mapstructure:"engine_temp_max" yaml:"engine_temp_max"`
	IdleRPMMin    float64 `mapstructure:"idle_rpm_min" yaml:"idle_rpm_min"`
	IdleLoadMax   float64 `mapstructure:"idle_load_max" yaml:"idle_load_max"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EngineTempMax: 100,
		IdleRPMMin:    900,
		IdleLoadMax:   15,
	}
}

// Recommend maps the current codes and parameters to an ordered advisory
// list: per-code rules in DTC order, then the parameter rules, then the
// fallback when nothing fired. The result is never empty.
func Recommend(codes []models.DTCEntry, params []models.VehicleParameter, th Thresholds) []models.Recommendation {
	var out []models.Recommendation

	for _, c := range codes {
		if rec, ok := codeRules[c.Code]; ok {
			out = append(out, clone(rec))
		}
	}

	if temp, ok := number(params, models.LabelEngineTemp); ok && temp > th.EngineTempMax {
		out = append(out, clone(overheating))
	}

	rpm, rpmOk := number(params, models.LabelRPM)
	load, loadOk := number(params, models.LabelEngineLoad)
	if rpmOk && loadOk && rpm > th.IdleRPMMin && load < th.IdleLoadMax {
		out = append(out, clone(roughIdle))
	}

	if len(out) == 0 {
		out = append(out, clone(goodCondition))
	}
	return out
}

// PriorityColor is the tview color tag used to render a priority.
func PriorityColor(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return "red"
	case models.PriorityMedium:
		return "orange"
	case models.PriorityLow:
		return "green"
	}
	return "gray"
}

func number(params []models.VehicleParameter, label string) (float64, bool) {
	p, ok := models.FindParameter(params, label)
	if !ok {
		return 0, false
	}
	return p.Number()
}

func clone(r models.Recommendation) models.Recommendation {
	r.Components = append([]string(nil), r.Components...)
	return r
}
