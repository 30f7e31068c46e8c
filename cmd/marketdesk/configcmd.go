package main

import (
	"context"
	"encoding/json"
	"fmt"

	"marketdesk/internal/connectivity"
	"marketdesk/internal/credstore"
	"marketdesk/internal/gateway"
	"marketdesk/internal/notify"
	"marketdesk/logger"
	"marketdesk/pkg/gatewayclient"
	"marketdesk/pkg/market"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Postgres.Password != "" {
			shown.Postgres.Password = "****"
		}
		if shown.Telegram.BotToken != "" {
			shown.Telegram.BotToken = "****"
		}

		out, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var testViaGateway string

var configTestCmd = &cobra.Command{
	Use:   "test <exchange>",
	Short: "Run the connection test for the stored credentials of one exchange",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigTest,
}

func init() {
	configTestCmd.Flags().StringVar(&testViaGateway, "via-gateway", "", "Send the test through the proxy gateway at this URL")
	configTestCmd.Flags().Lookup("via-gateway").NoOptDefVal = "default"

	configCmd.AddCommand(configShowCmd, configTestCmd)
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	backend, closeBackend, err := openBackend(log)
	if err != nil {
		return err
	}
	defer closeBackend()

	notifier := notify.New(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger.Component(log, "notify"))
	defer notifier.Wait()

	probers := gateway.NewRegistry(cfg.Exchanges).Probers()
	if testViaGateway != "" {
		url := gatewayURL(testViaGateway)
		probers = make(map[market.ID]market.CredentialProber, len(market.Exchanges))
		for _, id := range market.Exchanges {
			probers[id] = gatewayclient.New(url, id, cfg.Exchanges.Timeout)
		}
	}

	store := credstore.New(backend, cfg.Store.Key, logger.Component(log, "credstore"))
	tester := connectivity.NewTester(store, probers, notifier, logger.Component(log, "connectivity"))

	id := market.ID(args[0])
	res, err := tester.Test(context.Background(), id)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s connection test failed: %s", id, res.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s connected, trading enabled\n", id)
	return nil
}
