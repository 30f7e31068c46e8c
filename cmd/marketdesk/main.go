package main

import (
	"fmt"
	"os"

	"marketdesk/config"
	"marketdesk/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	v          = config.New()
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "marketdesk",
	Short: "Trading dashboard backend: exchange proxy, market data poller and credential store",
	Long: `marketdesk relays credential checks and market data requests to Binance, Bybit and Dhan,
keeps polled market snapshots for dashboard clients and stores per-exchange API settings.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("env", "", "Environment (dev, prod)")

	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("environment", rootCmd.PersistentFlags().Lookup("env"))

	rootCmd.AddCommand(serveCmd, watchCmd, configCmd)
}

func newLogger() (*zap.Logger, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
