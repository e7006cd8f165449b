// Command botctl runs and administers the trading bot.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/app"
)

var (
	configPath string

	cfg    *config.Config
	logger zerolog.Logger

	rootCmd = &cobra.Command{
		Use:           "botctl",
		Short:         "Run and administer the MetaAPI trading bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			var err error
			cfg, err = config.LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger = app.NewLogger(cfg.LoggingConfig)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON config file")

	rootCmd.AddCommand(serveCmd, migrateCmd, statsCmd, cleanupCmd, sampleConfigCmd, hashPasswordCmd, credentialsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
