package mock

import (
	"context"
	"sync"
	"time"

	"obdscan/internal/models"
	"obdscan/internal/obd"
)

var defaultCodes = []string{"P0301", "P0420", "P0171"}

// Config tunes the simulated device latencies and the codes it stores.
// A nil Codes means the default set.
type Config struct {
	HandshakeDelay time.Duration `mapstructure:"handshake_delay" yaml:"handshake_delay"`
	ClearDelay     time.Duration `mapstructure:"clear_delay" yaml:"clear_delay"`
	Codes          []string      `mapstructure:"codes" yaml:"codes"`
}

func DefaultConfig() Config {
	return Config{
		HandshakeDelay: 2 * time.Second,
		ClearDelay:     2 * time.Second,
		Codes:          append([]string(nil), defaultCodes...),
	}
}

// DefaultCodes is the DTC set the mock device reports out of the box.
func DefaultCodes() []models.DTCEntry {
	return buildCodes(defaultCodes)
}

func buildCodes(codes []string) []models.DTCEntry {
	out := make([]models.DTCEntry, 0, len(codes))
	for _, c := range codes {
		out = append(out, obd.NewDTC(c))
	}
	return out
}

// MockOBD is a simple mock implementation of OBDProvider used for demo and testing.
type MockOBD struct {
	mu      sync.RWMutex
	cfg     Config
	running bool
	info    models.VehicleInfo
	errors  []models.DTCEntry

	connectErr error
	clearErr   error
}

func New(cfg Config) *MockOBD {
	codes := DefaultCodes()
	if cfg.Codes != nil {
		codes = buildCodes(cfg.Codes)
	}
	return &MockOBD{
		cfg: cfg,
		info: models.VehicleInfo{
			VIN:      "1HGBH41JXMN109186",
			Protocol: "ISO 15765-4 (CAN 11/500)",
			ECUCount: 7,
		},
		errors: codes,
	}
}

func (m *MockOBD) Name() string { return "Mock OBD" }

// FailConnect makes every following handshake fail with err. nil restores success.
func (m *MockOBD) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// FailClear makes every following clear fail with err. nil restores success.
func (m *MockOBD) FailClear(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearErr = err
}

func (m *MockOBD) Connect(ctx context.Context) (models.VehicleInfo, error) {
	if err := sleep(ctx, m.cfg.HandshakeDelay); err != nil {
		return models.VehicleInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return models.VehicleInfo{}, m.connectErr
	}
	m.running = true
	return m.info, nil
}

func (m *MockOBD) ReadCodes(ctx context.Context) ([]models.DTCEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	copyErr := make([]models.DTCEntry, len(m.errors))
	copy(copyErr, m.errors)
	return copyErr, nil
}

func (m *MockOBD) ClearCodes(ctx context.Context) error {
	if err := sleep(ctx, m.cfg.ClearDelay); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	m.errors = []models.DTCEntry{}
	return nil
}

func (m *MockOBD) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// IsConnected for MockOBD returns true between a successful Connect and Close.
func (m *MockOBD) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
