package printconfig

import (
	"fmt"

	"obdscan/internal/config"
	"obdscan/pkg/log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Run prints the effective configuration as YAML.
func Run(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	data, err := cfg.YAML()
	if err != nil {
		log.Fatal("failed to encode configuration", zap.Error(err))
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
}
