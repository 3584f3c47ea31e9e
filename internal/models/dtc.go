package models

// Severity classifies a trouble code.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// DTCEntry represents a diagnostic trouble code with description.
// Entries are immutable once created; the DTC set is keyed by Code.
type DTCEntry struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// VehicleInfo is what the link learns about the vehicle during the handshake.
type VehicleInfo struct {
	VIN      string `json:"vin"`
	Protocol string `json:"protocol"`
	ECUCount int    `json:"ecuCount"`
}
