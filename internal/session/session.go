package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"obdscan/internal/advisor"
	"obdscan/internal/events"
	"obdscan/internal/models"
	"obdscan/internal/obd"
	"obdscan/internal/telemetry"
	"obdscan/pkg/log"

	"go.uber.org/zap"
)

var (
	ErrConnection = errors.New("connection error")
	ErrClearCodes = errors.New("clear codes error")
)

// Notice texts shown by the display.
const (
	MsgSearching    = "Buscando dispositivo OBD2..."
	MsgConnected    = "Conectado exitosamente al OBD2"
	MsgDisconnected = "Desconectado del dispositivo OBD2"
	MsgClearing     = "Borrando códigos..."
	MsgCleared      = "Códigos borrados exitosamente"
	MsgConnectFail  = "No se pudo conectar al dispositivo OBD2"
	MsgLinkLost     = "Conexión perdida con el dispositivo OBD2"
	MsgClearFail    = "No se pudieron borrar los códigos"
)

// Updater produces the next parameter readings. The simulator and the
// serial PID poller both implement it.
type Updater interface {
	Update(ctx context.Context, params []models.VehicleParameter) ([]models.VehicleParameter, error)
}

type Config struct {
	TickInterval     time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

func DefaultConfig() Config {
	return Config{
		TickInterval:     2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Session owns the connection state, the clear-codes guard and the
// telemetry loop. Every change is published on the event bus.
//
// Asynchronous work captures the connection generation when it starts and
// only commits if the generation is still current, so a disconnect
// discards whatever handshake or tick is in flight.
type Session struct {
	cfg        Config
	link       obd.OBDProvider
	updater    Updater
	store      *telemetry.Store
	bus        *events.Bus
	thresholds advisor.Thresholds

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      models.ConnectionState
	clearing   bool
	closed     bool
	gen        uint64
	vehicle    models.VehicleInfo
	cancelConn context.CancelFunc
}

func New(cfg Config, link obd.OBDProvider, updater Updater, store *telemetry.Store, th advisor.Thresholds) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := events.NewBus()
	bus.OnDrop(func(e events.Event) {
		log.Debug("Event dropped for slow subscriber", zap.String("kind", string(e.Kind)))
	})
	return &Session{
		cfg:        cfg,
		link:       link,
		updater:    updater,
		store:      store,
		bus:        bus,
		thresholds: th,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Subscribe returns the event stream and its cancel function.
func (s *Session) Subscribe(buffer int) (<-chan events.Event, func()) {
	return s.bus.Subscribe(buffer)
}

func (s *Session) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Clearing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearing
}

// Vehicle returns what the last successful handshake reported.
func (s *Session) Vehicle() models.VehicleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vehicle
}

func (s *Session) Codes() []models.DTCEntry {
	return s.store.Codes()
}

func (s *Session) Parameters() []models.VehicleParameter {
	return s.store.Parameters()
}

// Recommendations is recomputed from the store on every call.
func (s *Session) Recommendations() []models.Recommendation {
	codes, params := s.store.Snapshot()
	return advisor.Recommend(codes, params, s.thresholds)
}

// Connect starts the handshake. It returns false, doing nothing, unless the
// session is Disconnected.
func (s *Session) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != models.Disconnected {
		return false
	}

	s.gen++
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelConn = cancel
	s.setState(models.Connecting, "", nil)
	s.notice(events.LevelLoading, MsgSearching, "", nil)
	log.Info("Connecting", zap.String("link", s.link.Name()))

	s.wg.Add(1)
	go s.handshake(ctx, s.gen)
	return true
}

func (s *Session) handshake(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	hctx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.HandshakeTimeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	}
	info, err := s.link.Connect(hctx)
	var codes []models.DTCEntry
	var readErr error
	if err == nil {
		codes, readErr = s.link.ReadCodes(hctx)
	}
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != models.Connecting {
		log.Debug("Discarding stale handshake", zap.Uint64("generation", gen), zap.Error(err))
		if err == nil && s.state == models.Disconnected {
			_ = s.link.Close()
		}
		return
	}

	if err != nil {
		s.cancelConn()
		s.cancelConn = nil
		err = fmt.Errorf("%w: %w", ErrConnection, err)
		log.Error("Handshake failed", zap.Error(err))
		s.setState(models.Disconnected, events.ConnectionError, err)
		s.notice(events.LevelError, MsgConnectFail, events.ConnectionError, err)
		return
	}

	if readErr != nil {
		log.Warn("Failed to read trouble codes", zap.Error(readErr))
	} else {
		s.store.SetCodes(codes)
		s.publishCodes()
	}

	s.vehicle = info
	s.setState(models.Connected, "", nil)
	s.notice(events.LevelSuccess, MsgConnected, "", nil)
	log.Info("Connected", zap.String("vin", info.VIN), zap.String("protocol", info.Protocol))

	s.wg.Add(1)
	go s.telemetryLoop(ctx, gen)
}

// telemetryLoop ticks from the moment Connected was entered until the
// connection context is cancelled.
func (s *Session) telemetryLoop(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		updated, err := s.updater.Update(ctx, s.store.Parameters())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !s.link.IsConnected() {
				s.linkLost(gen, err)
				return
			}
			log.Warn("Telemetry update failed", zap.Error(err))
			continue
		}
		s.commitTick(gen, updated)
	}
}

func (s *Session) commitTick(gen uint64, updated []models.VehicleParameter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != models.Connected {
		return false
	}
	s.store.SetParameters(updated)
	codes, params := s.store.Snapshot()
	s.bus.Publish(events.Event{
		Kind:            events.TelemetryTick,
		State:           s.state,
		Clearing:        s.clearing,
		Parameters:      params,
		Recommendations: advisor.Recommend(codes, params, s.thresholds),
	})
	return true
}

// linkLost ends a connection whose device went away. It behaves like
// Disconnect but reports a ConnectionError.
func (s *Session) linkLost(gen uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != models.Connected {
		return
	}

	s.gen++
	if s.cancelConn != nil {
		s.cancelConn()
		s.cancelConn = nil
	}
	if err := s.link.Close(); err != nil {
		log.Warn("Failed to close link", zap.Error(err))
	}
	err := fmt.Errorf("%w: link lost: %w", ErrConnection, cause)
	log.Error("Vehicle link lost", zap.Error(err))
	s.setState(models.Disconnected, events.ConnectionError, err)
	s.notice(events.LevelError, MsgLinkLost, events.ConnectionError, err)
}

// Disconnect stops the link and the telemetry loop. It is accepted from
// Connected and Connecting.
func (s *Session) Disconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.Disconnected {
		return false
	}

	s.gen++
	if s.cancelConn != nil {
		s.cancelConn()
		s.cancelConn = nil
	}
	if err := s.link.Close(); err != nil {
		log.Warn("Failed to close link", zap.Error(err))
	}
	s.setState(models.Disconnected, "", nil)
	s.notice(events.LevelInfo, MsgDisconnected, "", nil)
	log.Info("Disconnected")
	return true
}

// ClearCodes erases the trouble codes. A call while a clear is pending
// returns false and starts nothing.
func (s *Session) ClearCodes() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.clearing {
		return false
	}

	s.clearing = true
	s.publishClearing()
	s.notice(events.LevelLoading, MsgClearing, "", nil)

	s.wg.Add(1)
	go s.clear()
	return true
}

func (s *Session) clear() {
	defer s.wg.Done()

	err := s.link.ClearCodes(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrClearCodes, err)
		log.Error("Clearing trouble codes failed", zap.Error(err))
		s.notice(events.LevelError, MsgClearFail, events.ClearCodesError, err)
	} else {
		s.store.ClearCodes()
		s.publishCodes()
		s.notice(events.LevelSuccess, MsgCleared, "", nil)
		log.Info("Trouble codes cleared")
	}
	s.clearing = false
	s.publishClearing()
}

// Close cancels all pending work, waits for it and closes the event bus.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.state = models.Disconnected
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	if err := s.link.Close(); err != nil {
		log.Warn("Failed to close link", zap.Error(err))
	}
	s.bus.Close()
}

// the helpers below are called with s.mu held

func (s *Session) setState(state models.ConnectionState, kind events.ErrKind, err error) {
	s.state = state
	s.bus.Publish(events.Event{
		Kind:     events.ConnectionChanged,
		State:    state,
		Clearing: s.clearing,
		ErrKind:  kind,
		Err:      err,
	})
}

func (s *Session) publishClearing() {
	s.bus.Publish(events.Event{
		Kind:     events.ClearingChanged,
		State:    s.state,
		Clearing: s.clearing,
	})
}

func (s *Session) publishCodes() {
	codes, params := s.store.Snapshot()
	s.bus.Publish(events.Event{
		Kind:            events.CodesChanged,
		State:           s.state,
		Clearing:        s.clearing,
		Codes:           codes,
		Recommendations: advisor.Recommend(codes, params, s.thresholds),
	})
}

func (s *Session) notice(level events.Level, msg string, kind events.ErrKind, err error) {
	s.bus.Publish(events.Event{
		Kind:     events.Notice,
		State:    s.state,
		Clearing: s.clearing,
		Level:    level,
		Message:  msg,
		ErrKind:  kind,
		Err:      err,
	})
}
