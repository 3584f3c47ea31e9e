package cmd

import (
	"fmt"
	"os"

	"obdscan/internal/cmd/printconfig"
	"obdscan/internal/cmd/root"
	"obdscan/internal/cmd/serve"
	"obdscan/internal/config"
	"obdscan/pkg/log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "obdscan",
	Short: "OBD2 companion display: trouble codes, live telemetry and maintenance advice",
	Run:   root.Run,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the session over HTTP and a websocket event stream",
	Run:   serve.Run,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Run:   printconfig.Run,
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().Bool("no-tui", false, "Connect, print a summary and exit")
	rootCmd.PersistentFlags().Bool("mock", false, "Use mock OBD provider")
	rootCmd.PersistentFlags().String("port", "", "Serial port of the ELM327 adapter (detected when empty)")
	rootCmd.PersistentFlags().Int("baud", 38400, "Baud rate for serial connection")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("no-tui", rootCmd.PersistentFlags().Lookup("no-tui"))
	viper.BindPFlag("mock", rootCmd.PersistentFlags().Lookup("mock"))
	viper.BindPFlag("serial.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("serial.baud", rootCmd.PersistentFlags().Lookup("baud"))
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd, configCmd)
}

func initConfig() {
	if err := config.Setup(viper.GetViper(), cfgFile); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initLogger() {
	log.InitLogger(viper.GetBool("debug"))
}

func Execute() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
