package serial

import (
	"context"
	"math"
	"strconv"

	"obdscan/internal/models"
	"obdscan/internal/obd"
	"obdscan/pkg/log"

	"go.uber.org/zap"
)

type livePID struct {
	pid obd.PID
	// fullScale maps the value to a percentage.
	fullScale float64
}

var livePIDs = map[string]livePID{
	models.LabelRPM:            {obd.PIDEngineRPM, 6000},
	models.LabelSpeed:          {obd.PIDVehicleSpeed, 200},
	models.LabelEngineTemp:     {obd.PIDCoolantTemp, 125},
	models.LabelEngineLoad:     {obd.PIDEngineLoad, 100},
	models.LabelIntakePressure: {obd.PIDIntakePressure, 100},
	models.LabelFuelLevel:      {obd.PIDFuelLevel, 100},
}

// Update polls the PID behind every known label. A PID that cannot be read
// keeps its previous value; only a lost link is an error.
func (s *SerialOBD) Update(ctx context.Context, params []models.VehicleParameter) ([]models.VehicleParameter, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}

	out := make([]models.VehicleParameter, len(params))
	copy(out, params)
	for i, p := range out {
		live, ok := livePIDs[p.Label]
		if !ok {
			continue
		}
		resp, err := s.query(ctx, live.pid.String())
		if err != nil {
			if ctx.Err() != nil || !s.IsConnected() {
				return nil, err
			}
			log.Debug("PID read failed", zap.String("pid", live.pid.Desc), zap.Error(err))
			continue
		}
		value, ok := parsePIDResponse(resp, live.pid)
		if !ok {
			log.Debug("PID not supported", zap.String("pid", live.pid.Desc), zap.String("response", resp))
			continue
		}
		out[i].Value = strconv.Itoa(int(math.Round(value)))
		out[i].Percentage = models.Float64Ptr(math.Min(100, math.Max(0, value/live.fullScale*100)))
	}
	return out, nil
}
