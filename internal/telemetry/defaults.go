package telemetry

import "obdscan/internal/models"

// DefaultParameters is the parameter set a session starts with.
func DefaultParameters() []models.VehicleParameter {
	return []models.VehicleParameter{
		{Label: models.LabelRPM, Value: "850", Unit: "rpm", Icon: models.IconGauge, Percentage: models.Float64Ptr(14), Color: "purple"},
		{Label: models.LabelSpeed, Value: "0", Unit: "km/h", Icon: models.IconActivity, Percentage: models.Float64Ptr(0), Color: "blue"},
		{Label: models.LabelEngineTemp, Value: "92", Unit: "°C", Icon: models.IconThermometer, Percentage: models.Float64Ptr(73), Color: "red"},
		{Label: models.LabelEngineLoad, Value: "18", Unit: "%", Icon: models.IconZap, Percentage: models.Float64Ptr(18), Color: "yellow"},
		{Label: models.LabelIntakePressure, Value: "29", Unit: "kPa", Icon: models.IconWind, Percentage: models.Float64Ptr(29), Color: "cyan"},
		{Label: models.LabelFuelLevel, Value: "68", Unit: "%", Icon: models.IconDroplets, Percentage: models.Float64Ptr(68), Color: "green"},
	}
}
