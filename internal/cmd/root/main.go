package root

import (
	"fmt"
	"io"
	"os"
	"time"

	"obdscan/internal/config"
	"obdscan/internal/displayer"
	"obdscan/internal/events"
	"obdscan/internal/models"
	"obdscan/pkg/log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func Run(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	sess := NewSession(cfg)
	defer sess.Close()

	if cfg.NoTUI {
		if err := connectAndWait(sess, cfg.Session.HandshakeTimeout+time.Second); err != nil {
			log.Error("failed to connect", zap.Error(err))
		}
		printSummary(os.Stdout, sess.Vehicle(), sess.Codes(), sess.Recommendations())
		return
	}

	if err := displayer.New(sess).ConnectOnStart().Run(); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

type connector interface {
	Connect() bool
	Subscribe(buffer int) (<-chan events.Event, func())
}

// connectAndWait starts a connection and blocks until it settles.
func connectAndWait(c connector, timeout time.Duration) error {
	ch, cancel := c.Subscribe(64)
	defer cancel()
	if !c.Connect() {
		return fmt.Errorf("session is not disconnected")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return fmt.Errorf("session closed")
			}
			if e.Kind != events.ConnectionChanged {
				continue
			}
			switch {
			case e.State == models.Connected:
				return nil
			case e.State == models.Disconnected:
				if e.Err != nil {
					return e.Err
				}
				return fmt.Errorf("disconnected")
			}
		case <-timer.C:
			return fmt.Errorf("no connection after %s", timeout)
		}
	}
}

func printSummary(w io.Writer, vehicle models.VehicleInfo, codes []models.DTCEntry, recs []models.Recommendation) {
	if vehicle.VIN != "" {
		fmt.Fprintf(w, "Vehicle: %s (%s, %d ECUs)\n", vehicle.VIN, vehicle.Protocol, vehicle.ECUCount)
	}

	fmt.Fprintln(w, "Current DTC Error Codes:")
	if len(codes) == 0 {
		fmt.Fprintln(w, "No error codes.")
	} else {
		for _, code := range codes {
			fmt.Fprintf(w, "- %s [%s]: %s\n", code.Code, code.Severity, code.Description)
		}
	}

	fmt.Fprintln(w, "Recommendations:")
	for _, r := range recs {
		fmt.Fprintf(w, "- [%s] %s (%s)\n", r.Priority, r.Title, r.EstimatedCost)
	}
}
