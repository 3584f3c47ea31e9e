package obd

import (
	"context"

	"obdscan/internal/models"
)

// OBDProvider abstracts the vehicle link: the OBD-II device the session
// talks to. It handles the handshake and reading and clearing codes.
// Live telemetry is polled separately (see serial.SerialOBD.Update).
type OBDProvider interface {
	Name() string
	// Connect finds the device and performs the handshake. It blocks until
	// the device answered, failed, or ctx is done.
	Connect(ctx context.Context) (models.VehicleInfo, error)
	// ReadCodes returns the stored trouble codes (mode 03).
	ReadCodes(ctx context.Context) ([]models.DTCEntry, error)
	// ClearCodes erases the stored trouble codes (mode 04).
	ClearCodes(ctx context.Context) error
	Close() error
	IsConnected() bool
}
