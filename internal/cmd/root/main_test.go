package root

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obdscan/internal/advisor"
	"obdscan/internal/config"
	"obdscan/internal/models"
	"obdscan/internal/obd/mock"
	"obdscan/internal/session"
	"obdscan/internal/simulator"
	"obdscan/internal/telemetry"
)

func testConfig() config.Config {
	return config.Config{
		Mock:      true,
		Session:   session.Config{TickInterval: 10 * time.Millisecond, HandshakeTimeout: time.Second},
		Device:    mock.Config{HandshakeDelay: time.Millisecond, ClearDelay: time.Millisecond},
		Advisor:   advisor.DefaultThresholds(),
		Simulator: simulator.DefaultConfig(),
	}
}

func TestConnectAndWaitWithMock(t *testing.T) {
	sess := NewSession(testConfig())
	defer sess.Close()

	require.NoError(t, connectAndWait(sess, time.Second))
	assert.Equal(t, models.Connected, sess.State())
	assert.Len(t, sess.Codes(), 3)

	assert.Error(t, connectAndWait(sess, time.Second), "already connected")
}

func TestConnectAndWaitReportsFailure(t *testing.T) {
	link := mock.New(mock.Config{HandshakeDelay: time.Millisecond})
	boom := errors.New("no adapter")
	link.FailConnect(boom)
	sess := session.New(session.DefaultConfig(), link, simulator.New(simulator.DefaultConfig(), nil),
		telemetry.NewStore(nil, telemetry.DefaultParameters()), advisor.DefaultThresholds())
	defer sess.Close()

	err := connectAndWait(sess, time.Second)
	assert.ErrorIs(t, err, session.ErrConnection)
	assert.ErrorIs(t, err, boom)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	codes := mock.DefaultCodes()
	recs := advisor.Recommend(codes, telemetry.DefaultParameters(), advisor.DefaultThresholds())

	printSummary(&buf, models.VehicleInfo{VIN: "1HGBH41JXMN109186", Protocol: "CAN", ECUCount: 7}, codes, recs)

	out := buf.String()
	assert.Contains(t, out, "Vehicle: 1HGBH41JXMN109186 (CAN, 7 ECUs)")
	assert.Contains(t, out, "- P0301 [critical]: Fallo de encendido en cilindro 1")
	assert.Contains(t, out, "- [high] Revisar Sistema de Encendido - Cilindro 1 ($50 - $300)")
}

func TestPrintSummaryWithoutCodes(t *testing.T) {
	var buf bytes.Buffer
	recs := advisor.Recommend(nil, telemetry.DefaultParameters(), advisor.DefaultThresholds())
	printSummary(&buf, models.VehicleInfo{}, nil, recs)

	out := buf.String()
	assert.NotContains(t, out, "Vehicle:")
	assert.Contains(t, out, "No error codes.")
	assert.Contains(t, out, "[low] Vehículo en Buen Estado")
}
