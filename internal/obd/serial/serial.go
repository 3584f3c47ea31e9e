package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"obdscan/internal/models"
	"obdscan/internal/obd"
	"obdscan/pkg/log"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const DefaultDelay = 100 * time.Millisecond

const (
	CommandReset           = "ATZ"
	CommandDefaults        = "ATD"
	CommandEchoOff         = "ATE0"
	CommandLineFeedsOff    = "ATL0"
	CommandHeadersOff      = "ATH0"
	CommandSpacesOn        = "ATS1"
	CommandSetProtocolAuto = "ATSP0"
	CommandProtocolNum     = "ATDPN"
	CommandReadVoltage     = "ATRV"
	CommandSupportedPIDs   = "0100"

	CR     = "\r"
	Prompt = '>'

	minVoltage = 6.0
)

var protocolNames = map[string]string{
	"0": "Auto",
	"1": "SAE J1850 PWM (41.6 kbaud)",
	"2": "SAE J1850 VPW (10.4 kbaud)",
	"3": "ISO 9141-2 (5 baud init)",
	"4": "ISO 14230-4 KWP (5 baud init)",
	"5": "ISO 14230-4 KWP (fast init)",
	"6": "ISO 15765-4 (CAN 11/500)",
	"7": "ISO 15765-4 (CAN 29/500)",
	"8": "ISO 15765-4 (CAN 11/250)",
	"9": "ISO 15765-4 (CAN 29/250)",
	"A": "SAE J1939 (CAN 29/250)",
}

var (
	ErrNotConnected = errors.New("not connected")
	ErrSuperseded   = errors.New("handshake superseded")
	ErrTimeout      = errors.New("read timeout")
	ErrNoResponse   = errors.New("no response")
)

// Opener opens the serial device. Tests replace it with an in-memory port.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

func openTarm(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: DefaultDelay,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
}

// Config of the ELM327 link.
type Config struct {
	Port string `mapstructure:"port" yaml:"port"`
	Baud int    `mapstructure:"baud" yaml:"baud"`
	// ReadTimeout bounds a single command round trip.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// ResetDelay is the settle time after ATZ.
	ResetDelay time.Duration `mapstructure:"reset_delay" yaml:"reset_delay"`
}

func DefaultConfig() Config {
	return Config{
		Baud:        38400,
		ReadTimeout: 2 * time.Second,
		ResetDelay:  time.Second,
	}
}

// SerialOBD implements OBDProvider backed by a serial (ELM327-like) device.
// It also polls live PIDs, see Update.
type SerialOBD struct {
	cfg  Config
	open Opener

	// io serialises command round trips; the ELM327 handles one at a time.
	io sync.Mutex

	mu          sync.RWMutex
	port        io.ReadWriteCloser
	isConnected bool
	can         bool
	// attempt is bumped by every Connect and Close. A handshake only
	// installs its port if no other Connect or Close happened meanwhile.
	attempt uint64
}

// New creates a SerialOBD. An empty port name is detected from the
// available serial devices when connecting.
func New(cfg Config) *SerialOBD {
	return &SerialOBD{cfg: cfg, open: openTarm}
}

// WithOpener swaps the function used to open the port.
func (s *SerialOBD) WithOpener(open Opener) *SerialOBD {
	s.open = open
	return s
}

func (s *SerialOBD) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return "ELM327 " + s.cfg.Port
}

func (s *SerialOBD) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// Connect opens its own port and runs the ELM327 init on it. The port
// replaces the current one only if the handshake was not superseded by a
// Close or a newer Connect; otherwise it is closed and ErrSuperseded returned.
func (s *SerialOBD) Connect(ctx context.Context) (models.VehicleInfo, error) {
	name, attempt := s.beginAttempt()

	log.Info("Opening serial port", zap.String("port", name), zap.Int("baud", s.cfg.Baud))
	p, err := s.open(name, s.cfg.Baud)
	if err != nil {
		return models.VehicleInfo{}, fmt.Errorf("failed to open port %s: %w", name, err)
	}
	if !s.current(attempt) {
		_ = p.Close()
		return models.VehicleInfo{}, ErrSuperseded
	}

	info, can, err := s.initELM327(ctx, p)
	if err != nil {
		_ = p.Close()
		return models.VehicleInfo{}, err
	}

	s.mu.Lock()
	if attempt != s.attempt {
		s.mu.Unlock()
		_ = p.Close()
		return models.VehicleInfo{}, ErrSuperseded
	}
	old := s.port
	s.port = p
	s.can = can
	s.isConnected = true
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	log.Info("ELM327 initialization completed", zap.String("protocol", info.Protocol), zap.String("vin", info.VIN))
	return info, nil
}

// beginAttempt resolves the port name once and starts a new handshake.
func (s *SerialOBD) beginAttempt() (string, uint64) {
	s.mu.RLock()
	name := s.cfg.Port
	s.mu.RUnlock()
	if name == "" {
		name = detectPlatformSerialDev()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Port == "" {
		s.cfg.Port = name
	}
	s.attempt++
	return s.cfg.Port, s.attempt
}

func (s *SerialOBD) current(attempt uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return attempt == s.attempt
}

func (s *SerialOBD) initELM327(ctx context.Context, p io.ReadWriter) (models.VehicleInfo, bool, error) {
	var info models.VehicleInfo

	resp, err := s.roundTrip(ctx, p, CommandReset)
	if err != nil {
		return info, false, fmt.Errorf("device failed to respond to reset: %w", err)
	}
	if !strings.Contains(resp, "ELM") {
		return info, false, fmt.Errorf("no ELM327 identifier in %q", resp)
	}
	if err := sleep(ctx, s.cfg.ResetDelay); err != nil {
		return info, false, err
	}

	commands := []string{
		CommandDefaults,
		CommandEchoOff,
		CommandLineFeedsOff,
		CommandHeadersOff,
		CommandSpacesOn,
		CommandSetProtocolAuto,
	}
	for _, cmd := range commands {
		resp, err := s.roundTrip(ctx, p, cmd)
		if err != nil {
			return info, false, fmt.Errorf("command %s failed: %w", cmd, err)
		}
		if !strings.Contains(resp, "OK") {
			return info, false, fmt.Errorf("command %s got %q", cmd, resp)
		}
	}

	// ATRV is not supported by every clone
	if resp, err := s.roundTrip(ctx, p, CommandReadVoltage); err == nil {
		if v, err := parseVoltage(resp); err == nil {
			if v < minVoltage {
				return info, false, fmt.Errorf("voltage too low: %.1fV", v)
			}
			log.Debug("Battery voltage", zap.Float64("volts", v))
		}
	}

	// the first request triggers the protocol search
	resp, err = s.roundTrip(ctx, p, CommandSupportedPIDs)
	if err != nil {
		return info, false, fmt.Errorf("protocol search failed: %w", err)
	}
	if isNegative(resp) {
		return info, false, fmt.Errorf("unable to connect to vehicle: %s", resp)
	}

	resp, err = s.roundTrip(ctx, p, CommandProtocolNum)
	if err != nil {
		return info, false, fmt.Errorf("failed to get protocol number: %w", err)
	}
	// "A6" means protocol 6 found by the automatic search
	num := strings.TrimSpace(resp)
	if len(num) > 1 {
		num = strings.TrimPrefix(num, "A")
	}
	info.Protocol = protocolNames[num]
	if info.Protocol == "" {
		info.Protocol = "Unknown"
	}
	can := num >= "6" && num <= "9"

	if resp, err := s.roundTrip(ctx, p, obd.PIDVIN.String()); err == nil {
		info.VIN = parseVIN(resp)
		info.ECUCount = countECUs(resp, obd.PIDVIN.ResponseMode())
	} else {
		log.Warn("VIN not available", zap.Error(err))
	}
	return info, can, nil
}

func (s *SerialOBD) ReadCodes(ctx context.Context) ([]models.DTCEntry, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	resp, err := s.query(ctx, obd.ModeStoredDTCs)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored codes: %w", err)
	}

	s.mu.RLock()
	can := s.can
	s.mu.RUnlock()

	codes := parseELMResponseDTCs(resp, can)
	log.Info("Read stored trouble codes", zap.Int("count", len(codes)))
	return codes, nil
}

func (s *SerialOBD) ClearCodes(ctx context.Context) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	resp, err := s.query(ctx, obd.ModeClearDTCs)
	if err != nil {
		return fmt.Errorf("failed to clear codes: %w", err)
	}
	if !containsToken(resp, "44") {
		return fmt.Errorf("clear codes rejected: %q", resp)
	}
	log.Info("Trouble codes cleared")
	return nil
}

// Close closes the port and supersedes any handshake in progress. A round
// trip in progress fails with a read error.
func (s *SerialOBD) Close() error {
	s.mu.Lock()
	p := s.port
	s.port = nil
	s.isConnected = false
	s.attempt++
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Close()
}

// query sends cmd on the installed port. An I/O failure other than a
// timeout means the adapter is gone: the port is dropped and IsConnected
// turns false.
func (s *SerialOBD) query(ctx context.Context, cmd string) (string, error) {
	s.mu.RLock()
	p := s.port
	s.mu.RUnlock()
	if p == nil {
		return "", ErrNotConnected
	}
	resp, err := s.roundTrip(ctx, p, cmd)
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrNoResponse) {
		s.drop(p, err)
	}
	return resp, err
}

func (s *SerialOBD) drop(p io.ReadWriteCloser, cause error) {
	s.mu.Lock()
	if s.port != p {
		s.mu.Unlock()
		return
	}
	s.port = nil
	s.isConnected = false
	s.mu.Unlock()

	log.Warn("Serial link lost", zap.String("port", s.Name()), zap.Error(cause))
	_ = p.Close()
}

// roundTrip sends cmd on p and waits for the prompt.
func (s *SerialOBD) roundTrip(ctx context.Context, p io.ReadWriter, cmd string) (string, error) {
	s.io.Lock()
	defer s.io.Unlock()

	if _, err := p.Write([]byte(cmd + CR)); err != nil {
		return "", fmt.Errorf("error writing command %q: %w", cmd, err)
	}
	log.Debug("Command sent", zap.String("command", cmd))

	resp, err := readELMResponse(ctx, p, s.cfg.ReadTimeout)
	log.Debug("Command response", zap.String("command", cmd), zap.String("response", resp), zap.Error(err))
	if err != nil {
		return resp, err
	}
	if resp == "" {
		return "", ErrNoResponse
	}
	return resp, nil
}

// readELMResponse collects bytes until the ELM327 prompt '>' or the timeout.
// The port's own ReadTimeout keeps each Read short, so ctx is checked often.
func readELMResponse(ctx context.Context, r io.Reader, timeout time.Duration) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 64)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return strings.TrimSpace(sb.String()), err
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == Prompt {
				return strings.TrimSpace(sb.String()), nil
			}
			// drop nulls and other control characters except CR/LF
			if b >= 32 && b <= 126 || b == '\r' || b == '\n' {
				sb.WriteByte(b)
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return strings.TrimSpace(sb.String()), err
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	return strings.TrimSpace(sb.String()), ErrTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
