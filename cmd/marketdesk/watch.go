package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"marketdesk/internal/gateway"
	"marketdesk/internal/poller"
	"marketdesk/pkg/gatewayclient"
	"marketdesk/pkg/market"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchExchange string
	watchSymbol   string
	watchInterval string
	watchKind     string
	watchLive     bool
	watchEvery    time.Duration
	viaGateway    string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll one symbol and print every snapshot",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchExchange, "exchange", "e", "bybit", "Exchange (binance, bybit, dhan)")
	watchCmd.Flags().StringVarP(&watchSymbol, "symbol", "s", "BTCUSDT", "Trading symbol")
	watchCmd.Flags().StringVarP(&watchInterval, "interval", "i", "1h", "Candle interval (1m ... 1M)")
	watchCmd.Flags().StringVarP(&watchKind, "kind", "k", "both", "What to poll (ticker, chart, both)")
	watchCmd.Flags().BoolVar(&watchLive, "live", true, "Use live data; false shows generated sample data")
	watchCmd.Flags().DurationVar(&watchEvery, "every", 0, "Poll interval (default from config)")
	watchCmd.Flags().StringVar(&viaGateway, "via-gateway", "", "Reach exchanges through the proxy gateway at this URL")
	watchCmd.Flags().Lookup("via-gateway").NoOptDefVal = "default"
}

func runWatch(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	interval, err := market.ParseInterval(watchInterval)
	if err != nil {
		return err
	}
	kind, err := poller.ParseKind(watchKind)
	if err != nil {
		return err
	}

	registry := gateway.NewRegistry(cfg.Exchanges)
	var source func(gateway.Exchange) market.RawSource
	if viaGateway != "" {
		url := gatewayURL(viaGateway)
		source = func(ex gateway.Exchange) market.RawSource {
			return gatewayclient.New(url, ex.ID, cfg.Exchanges.Timeout)
		}
		fmt.Printf("Reaching exchanges through %s\n", url)

		// the poller shows sample data while the gateway is down, so only warn
		hctx, cancel := context.WithTimeout(context.Background(), cfg.Exchanges.Timeout)
		err := gatewayclient.New(url, market.ID(watchExchange), cfg.Exchanges.Timeout).Health(hctx)
		cancel()
		if err != nil {
			log.Warn("gateway health check failed", zap.String("url", url), zap.Error(err))
		}
	}

	p := poller.New(registry.Adapters(source), poller.Options{
		TickerEvery: cfg.Poller.TickerEvery,
		ChartEvery:  cfg.Poller.ChartEvery,
		Window:      cfg.Poller.Window,
		Logger:      log,
	})
	defer p.Close()

	h, err := p.Subscribe(poller.Subscription{
		Exchange:     market.ID(watchExchange),
		Symbol:       watchSymbol,
		Interval:     interval,
		PollInterval: watchEvery,
		Live:         watchLive,
		Kind:         kind,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s %s (%s, every %s)\n", watchExchange, watchSymbol, kind, h.Subscription().PollInterval)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down gracefully...")
			return nil
		case snap, ok := <-h.Updates():
			if !ok {
				return nil
			}
			printSnapshot(snap)
		}
	}
}

// gatewayURL resolves the --via-gateway value; a bare flag means the
// configured gateway.
func gatewayURL(flag string) string {
	if flag == "default" {
		return cfg.Exchanges.Gateway
	}
	return flag
}

func printSnapshot(snap poller.Snapshot) {
	status := string(snap.Source)
	if snap.Stale {
		status += ",stale"
	}
	if snap.Err != "" {
		status += " error=" + snap.Err
	}
	fmt.Printf("#%d [%s] %s\n", snap.Seq, snap.UpdatedAt.Format("2006-01-02 15:04:05"), status)

	if t := snap.Ticker; t != nil {
		fmt.Printf("  %s: price=%s change=%s%% high=%s low=%s vol=%s\n",
			t.Symbol, t.Price, t.Change24hPercent.StringFixed(2), t.High24h, t.Low24h, t.Volume24h)
	}
	if n := len(snap.Candles); n > 0 {
		c := snap.Candles[n-1]
		fmt.Printf("  %d candles, last %s: O=%s H=%s L=%s C=%s V=%s\n",
			n, c.OpenTime.Format("2006-01-02 15:04"), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
}
