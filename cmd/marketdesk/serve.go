package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"marketdesk/internal/connectivity"
	"marketdesk/internal/credstore"
	"marketdesk/internal/gateway"
	"marketdesk/internal/metrics"
	"marketdesk/internal/notify"
	"marketdesk/internal/poller"
	"marketdesk/logger"
	"marketdesk/pkg/storage"
	"marketdesk/pkg/storage/postgres"
	"marketdesk/pkg/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy gateway with the poller and credential store",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", gateway.DefaultPort, "Listening port")
	serveCmd.Flags().String("store", "", "Credential store driver (sqlite, postgres, memory)")

	v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	v.BindPFlag("store.driver", serveCmd.Flags().Lookup("store"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(log)
	if err != nil {
		return err
	}
	defer closeBackend()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, true)

	notifier := notify.New(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger.Component(log, "notify"))
	// runs after the poller is closed, flushing alerts raised on the way down
	defer notifier.Wait()

	registry := gateway.NewRegistry(cfg.Exchanges)
	store := credstore.New(backend, cfg.Store.Key, logger.Component(log, "credstore"))
	tester := connectivity.NewTester(store, registry.Probers(), notifier, logger.Component(log, "connectivity"))

	p := poller.New(registry.Adapters(nil), poller.Options{
		TickerEvery: cfg.Poller.TickerEvery,
		ChartEvery:  cfg.Poller.ChartEvery,
		Window:      cfg.Poller.Window,
		Metrics:     m,
		Notifier:    notifier,
		Logger:      log,
	})
	defer p.Close()

	srv := gateway.New(gateway.Options{
		Registry:        registry,
		Store:           store,
		Tester:          tester,
		Poller:          p,
		Metrics:         m,
		Gatherer:        reg,
		Logger:          log,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if err := srv.Run(ctx, cfg.Server.Addr()); err != nil {
		log.Error("gateway failed", zap.Error(err))
		return err
	}
	return nil
}

// openBackend opens the configured credential store backend.
func openBackend(log *zap.Logger) (credstore.Backend, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("using in-memory credential store; settings are lost on exit")
		return credstore.NewMemoryBackend(), func() {}, nil
	case "postgres":
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Environment, true)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return storage.NewSettings(client.DB), func() { client.Close() }, nil
	case "sqlite", "":
		client, err := sqlite.InitializeAndMigrate(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("credential store ready", zap.String("path", cfg.Store.Path))
		return storage.NewSettings(client.DB), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
