package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obdscan/internal/advisor"
	"obdscan/internal/events"
	"obdscan/internal/models"
	"obdscan/internal/obd/mock"
	"obdscan/internal/simulator"
	"obdscan/internal/telemetry"
)

const waitTimeout = 2 * time.Second

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func newSession(t *testing.T, link *mock.MockOBD, updater Updater) *Session {
	t.Helper()
	if updater == nil {
		updater = simulator.New(simulator.DefaultConfig(), constRand(0.5))
	}
	cfg := Config{TickInterval: 5 * time.Millisecond, HandshakeTimeout: time.Second}
	s := New(cfg, link, updater, telemetry.NewStore(nil, telemetry.DefaultParameters()), advisor.DefaultThresholds())
	t.Cleanup(s.Close)
	return s
}

func fastLink() *mock.MockOBD {
	return mock.New(mock.Config{HandshakeDelay: 5 * time.Millisecond, ClearDelay: 5 * time.Millisecond})
}

// waitFor reads events until match returns true and returns that event.
func waitFor(t *testing.T, ch <-chan events.Event, match func(events.Event) bool) events.Event {
	t.Helper()
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "event stream closed")
			if match(e) {
				return e
			}
		case <-timer.C:
			t.Fatal("timed out waiting for event")
		}
	}
}

func isState(state models.ConnectionState) func(events.Event) bool {
	return func(e events.Event) bool {
		return e.Kind == events.ConnectionChanged && e.State == state
	}
}

func isKind(kind events.Kind) func(events.Event) bool {
	return func(e events.Event) bool { return e.Kind == kind }
}

// drain collects whatever arrives within d.
func drain(ch <-chan events.Event, d time.Duration) []events.Event {
	var out []events.Event
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timer.C:
			return out
		}
	}
}

func TestConnectLifecycle(t *testing.T) {
	s := newSession(t, fastLink(), nil)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	assert.Equal(t, models.Connecting, s.State())
	assert.False(t, s.Connect(), "connect is ignored while connecting")

	first := waitFor(t, ch, isKind(events.ConnectionChanged))
	assert.Equal(t, models.Connecting, first.State)
	searching := waitFor(t, ch, isKind(events.Notice))
	assert.Equal(t, MsgSearching, searching.Message)
	assert.Equal(t, events.LevelLoading, searching.Level)

	codes := waitFor(t, ch, isKind(events.CodesChanged))
	require.Len(t, codes.Codes, 3)
	assert.Len(t, codes.Recommendations, 3)

	waitFor(t, ch, isState(models.Connected))
	ok := waitFor(t, ch, isKind(events.Notice))
	assert.Equal(t, MsgConnected, ok.Message)

	assert.Equal(t, models.Connected, s.State())
	assert.Equal(t, "1HGBH41JXMN109186", s.Vehicle().VIN)
	assert.False(t, s.Connect(), "connect is ignored while connected")

	tick := waitFor(t, ch, isKind(events.TelemetryTick))
	rpm, found := models.FindParameter(tick.Parameters, models.LabelRPM)
	require.True(t, found)
	assert.Equal(t, "900", rpm.Value)
	assert.NotEmpty(t, tick.Recommendations)

	require.True(t, s.Disconnect())
	waitFor(t, ch, isState(models.Disconnected))
	bye := waitFor(t, ch, isKind(events.Notice))
	assert.Equal(t, MsgDisconnected, bye.Message)
	assert.False(t, s.Disconnect())

	// the cycle is restartable
	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))
}

func TestNoTelemetryAfterDisconnect(t *testing.T) {
	s := newSession(t, fastLink(), nil)
	ch, cancel := s.Subscribe(1024)
	defer cancel()

	require.True(t, s.Connect())
	waitFor(t, ch, isKind(events.TelemetryTick))
	require.True(t, s.Disconnect())

	// events are published in transition order, so everything after the
	// Disconnected event must be free of ticks
	waitFor(t, ch, isState(models.Disconnected))
	for _, e := range drain(ch, 50*time.Millisecond) {
		assert.NotEqual(t, events.TelemetryTick, e.Kind)
	}
}

// blockingUpdater holds every update until released.
type blockingUpdater struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingUpdater) Update(_ context.Context, params []models.VehicleParameter) ([]models.VehicleParameter, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	out := make([]models.VehicleParameter, len(params))
	copy(out, params)
	for i := range out {
		out[i].Value = "1"
	}
	return out, nil
}

func TestInFlightTickIsDiscardedAfterDisconnect(t *testing.T) {
	upd := &blockingUpdater{entered: make(chan struct{}), release: make(chan struct{})}
	s := newSession(t, fastLink(), upd)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	select {
	case <-upd.entered:
	case <-time.After(waitTimeout):
		t.Fatal("updater never ran")
	}

	require.True(t, s.Disconnect())
	close(upd.release)

	for _, e := range drain(ch, 50*time.Millisecond) {
		assert.NotEqual(t, events.TelemetryTick, e.Kind)
	}
	rpm, _ := models.FindParameter(s.Parameters(), models.LabelRPM)
	assert.Equal(t, "850", rpm.Value)
}

func TestDisconnectWhileConnectingDiscardsHandshake(t *testing.T) {
	link := mock.New(mock.Config{HandshakeDelay: 20 * time.Millisecond})
	s := newSession(t, link, nil)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	require.True(t, s.Disconnect())

	for _, e := range drain(ch, 80*time.Millisecond) {
		assert.False(t, e.Kind == events.ConnectionChanged && e.State == models.Connected)
		assert.NotEqual(t, events.TelemetryTick, e.Kind)
	}
	assert.Equal(t, models.Disconnected, s.State())
}

func TestHandshakeFailure(t *testing.T) {
	link := fastLink()
	boom := errors.New("device absent")
	link.FailConnect(boom)
	s := newSession(t, link, nil)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	e := waitFor(t, ch, func(e events.Event) bool {
		return e.Kind == events.ConnectionChanged && e.ErrKind != ""
	})
	assert.Equal(t, models.Disconnected, e.State)
	assert.Equal(t, events.ConnectionError, e.ErrKind)
	assert.ErrorIs(t, e.Err, ErrConnection)
	assert.ErrorIs(t, e.Err, boom)

	n := waitFor(t, ch, isKind(events.Notice))
	assert.Equal(t, events.LevelError, n.Level)
	assert.Equal(t, models.Disconnected, s.State())

	link.FailConnect(nil)
	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))
}

func TestHandshakeTimeout(t *testing.T) {
	link := mock.New(mock.Config{HandshakeDelay: time.Hour})
	s := New(Config{TickInterval: time.Millisecond, HandshakeTimeout: 10 * time.Millisecond},
		link, simulator.New(simulator.DefaultConfig(), nil),
		telemetry.NewStore(nil, telemetry.DefaultParameters()), advisor.DefaultThresholds())
	t.Cleanup(s.Close)
	ch, cancel := s.Subscribe(64)
	defer cancel()

	require.True(t, s.Connect())
	e := waitFor(t, ch, func(e events.Event) bool { return e.ErrKind == events.ConnectionError })
	assert.ErrorIs(t, e.Err, context.DeadlineExceeded)
	assert.Equal(t, models.Disconnected, s.State())
}

// failingUpdater fails every update, like a poller whose adapter stopped answering.
type failingUpdater struct{ err error }

func (f failingUpdater) Update(context.Context, []models.VehicleParameter) ([]models.VehicleParameter, error) {
	return nil, f.err
}

func TestLostLinkEndsConnection(t *testing.T) {
	link := fastLink()
	gone := errors.New("adapter unplugged")
	s := newSession(t, link, failingUpdater{gone})
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))
	require.NoError(t, link.Close())

	e := waitFor(t, ch, isState(models.Disconnected))
	assert.Equal(t, events.ConnectionError, e.ErrKind)
	assert.ErrorIs(t, e.Err, ErrConnection)
	assert.ErrorIs(t, e.Err, gone)

	n := waitFor(t, ch, isKind(events.Notice))
	assert.Equal(t, MsgLinkLost, n.Message)
	assert.Equal(t, events.LevelError, n.Level)
	assert.Equal(t, models.Disconnected, s.State())

	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))
}

func TestUpdateErrorKeepsLiveLink(t *testing.T) {
	s := newSession(t, fastLink(), failingUpdater{errors.New("NO DATA")})
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))

	for _, e := range drain(ch, 50*time.Millisecond) {
		assert.NotEqual(t, events.ConnectionChanged, e.Kind)
		assert.NotEqual(t, events.TelemetryTick, e.Kind)
	}
	assert.Equal(t, models.Connected, s.State())
}

func TestClearCodesIsSingleFlight(t *testing.T) {
	s := newSession(t, fastLink(), nil)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))
	require.Len(t, s.Codes(), 3)

	require.True(t, s.ClearCodes())
	assert.True(t, s.Clearing())
	assert.False(t, s.ClearCodes(), "second clear is ignored while pending")

	var cleared int
	waitFor(t, ch, func(e events.Event) bool {
		if e.Kind == events.CodesChanged {
			cleared++
			assert.Empty(t, e.Codes)
			require.Len(t, e.Recommendations, 1)
			assert.Equal(t, models.PriorityLow, e.Recommendations[0].Priority)
		}
		return e.Kind == events.ClearingChanged && !e.Clearing
	})
	assert.Equal(t, 1, cleared)
	assert.False(t, s.Clearing())
	assert.Empty(t, s.Codes())

	for _, e := range drain(ch, 30*time.Millisecond) {
		assert.NotEqual(t, events.CodesChanged, e.Kind)
	}
}

func TestClearCodesEventOrder(t *testing.T) {
	s := newSession(t, fastLink(), nil)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.ClearCodes())

	var kinds []events.Kind
	waitFor(t, ch, func(e events.Event) bool {
		if e.Kind != events.TelemetryTick {
			kinds = append(kinds, e.Kind)
		}
		return e.Kind == events.ClearingChanged && !e.Clearing
	})
	assert.Equal(t, []events.Kind{
		events.ClearingChanged,
		events.Notice,
		events.CodesChanged,
		events.Notice,
		events.ClearingChanged,
	}, kinds)
}

func TestClearCodesFailureKeepsCodes(t *testing.T) {
	link := fastLink()
	s := newSession(t, link, nil)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))

	rejected := errors.New("rejected by ECU")
	link.FailClear(rejected)
	require.True(t, s.ClearCodes())

	e := waitFor(t, ch, func(e events.Event) bool { return e.ErrKind == events.ClearCodesError })
	assert.Equal(t, events.LevelError, e.Level)
	assert.ErrorIs(t, e.Err, ErrClearCodes)
	assert.ErrorIs(t, e.Err, rejected)

	waitFor(t, ch, func(e events.Event) bool { return e.Kind == events.ClearingChanged && !e.Clearing })
	assert.Len(t, s.Codes(), 3)
	assert.False(t, s.Clearing())

	link.FailClear(nil)
	assert.True(t, s.ClearCodes(), "guard is released after a failure")
}

func TestClearSurvivesDisconnect(t *testing.T) {
	link := mock.New(mock.Config{HandshakeDelay: time.Millisecond, ClearDelay: 20 * time.Millisecond})
	s := newSession(t, link, nil)
	ch, cancel := s.Subscribe(256)
	defer cancel()

	require.True(t, s.Connect())
	waitFor(t, ch, isState(models.Connected))
	require.True(t, s.ClearCodes())
	require.True(t, s.Disconnect())

	waitFor(t, ch, func(e events.Event) bool { return e.Kind == events.ClearingChanged && !e.Clearing })
	assert.Empty(t, s.Codes())
}

func TestRecommendationsFollowStore(t *testing.T) {
	store := telemetry.NewStore(mock.DefaultCodes(), telemetry.DefaultParameters())
	s := New(DefaultConfig(), fastLink(), simulator.New(simulator.DefaultConfig(), nil), store, advisor.DefaultThresholds())
	t.Cleanup(s.Close)

	first := s.Recommendations()
	require.Len(t, first, 3)
	assert.Equal(t, models.PriorityHigh, first[0].Priority)
	assert.Equal(t, models.PriorityMedium, first[1].Priority)
	assert.Equal(t, models.PriorityMedium, first[2].Priority)
	assert.Equal(t, first, s.Recommendations())

	store.ClearCodes()
	store.SetParameters([]models.VehicleParameter{{Label: models.LabelEngineTemp, Value: "104"}})
	recs := s.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, "Temperatura del Motor Elevada", recs[0].Title)
}

func TestCloseStopsEverything(t *testing.T) {
	s := newSession(t, fastLink(), nil)
	ch, _ := s.Subscribe(1024)

	require.True(t, s.Connect())
	waitFor(t, ch, isKind(events.TelemetryTick))
	s.Close()
	s.Close()

	assert.False(t, s.Connect())
	assert.False(t, s.ClearCodes())
	assert.Equal(t, models.Disconnected, s.State())

	for range ch {
	}
}
