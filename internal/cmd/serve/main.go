package serve

import (
	"context"
	"os/signal"
	"syscall"

	"obdscan/internal/cmd/root"
	"obdscan/internal/config"
	"obdscan/internal/server"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := root.NewSession(cfg)
	defer sess.Close()

	if err := server.New(sess).Run(ctx, cfg.Listen); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
