package root

import (
	"obdscan/internal/config"
	"obdscan/internal/obd"
	"obdscan/internal/obd/mock"
	"obdscan/internal/obd/serial"
	"obdscan/internal/session"
	"obdscan/internal/simulator"
	"obdscan/internal/telemetry"
	"obdscan/pkg/log"

	"go.uber.org/zap"
)

// NewSession wires the vehicle link and the telemetry updater chosen by
// cfg. The mock link pairs with the simulator, the serial link polls its
// own PIDs.
func NewSession(cfg config.Config) *session.Session {
	var (
		provider obd.OBDProvider
		updater  session.Updater
	)
	if cfg.Mock {
		provider = mock.New(cfg.Device)
		updater = simulator.New(cfg.Simulator, nil)
	} else {
		p := serial.New(cfg.Serial)
		provider = p
		updater = p
	}
	log.Info("Vehicle link selected", zap.String("link", provider.Name()))

	store := telemetry.NewStore(nil, telemetry.DefaultParameters())
	return session.New(cfg.Session, provider, updater, store, cfg.Advisor)
}
