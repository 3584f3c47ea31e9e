package obd

import "fmt"

type PID struct {
	Mode string
	Code string
	Desc string
	// Size is the number of data bytes in the response.
	Size int
	// Decode converts the data bytes to the physical value.
	Decode func(data []byte) float64
}

var (
	PIDEngineLoad     = PID{Mode: "01", Code: "04", Desc: "Calculated Engine Load", Size: 1, Decode: percent}
	PIDCoolantTemp    = PID{Mode: "01", Code: "05", Desc: "Engine Coolant Temperature", Size: 1, Decode: celsius}
	PIDIntakePressure = PID{Mode: "01", Code: "0B", Desc: "Intake Manifold Absolute Pressure", Size: 1, Decode: raw}
	PIDEngineRPM      = PID{Mode: "01", Code: "0C", Desc: "Engine RPM", Size: 2, Decode: rpm}
	PIDVehicleSpeed   = PID{Mode: "01", Code: "0D", Desc: "Vehicle Speed", Size: 1, Decode: raw}
	PIDFuelLevel      = PID{Mode: "01", Code: "2F", Desc: "Fuel Tank Level Input", Size: 1, Decode: percent}
	PIDVIN            = PID{Mode: "09", Code: "02", Desc: "Vehicle Identification Number"}
)

// Service modes without a PID byte.
const (
	ModeStoredDTCs = "03"
	ModeClearDTCs  = "04"
)

func (p PID) String() string {
	return fmt.Sprintf("%s%s", p.Mode, p.Code)
}

// ResponseMode is the mode byte the ECU answers with (request mode + 0x40).
func (p PID) ResponseMode() string {
	var m byte
	fmt.Sscanf(p.Mode, "%02X", &m)
	return fmt.Sprintf("%02X", m+0x40)
}

func raw(d []byte) float64     { return float64(d[0]) }
func percent(d []byte) float64 { return float64(d[0]) * 100 / 255 }
func celsius(d []byte) float64 { return float64(int(d[0]) - 40) }
func rpm(d []byte) float64     { return float64(int(d[0])*256+int(d[1])) / 4 }
