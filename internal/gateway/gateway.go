// Package gateway is the HTTP proxy that relays browser requests to the
// exchanges, signing credential checks on the way. It holds no credentials
// of its own.
//
//   - gateway.go: server wiring and lifecycle (this file)
//   - relay.go: exchange relay and health handlers
//   - settings.go: stored credential endpoints
//   - stream.go: websocket market stream
//   - middleware.go: request id, logging, CORS, recovery
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"marketdesk/internal/connectivity"
	"marketdesk/internal/credstore"
	"marketdesk/internal/metrics"
	"marketdesk/internal/poller"
	"marketdesk/pkg/gatewayclient"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	DefaultPort    = 3001
	DefaultLimit   = 100
	RequestTimeout = 30 * time.Second

	HealthMessage = "Trading API Proxy Server is running"
)

type Options struct {
	Registry Registry
	// Store, Tester and Poller are optional; their routes are skipped when nil.
	Store    *credstore.Store
	Tester   *connectivity.Tester
	Poller   *poller.Poller
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	ShutdownTimeout time.Duration
}

type Server struct {
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		opts: opts,
		log:  opts.Logger.With(zap.String("component", "gateway")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router configures all routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(zapLoggerMiddleware(s.log, s.opts.Metrics))
	router.Use(recoveryMiddleware(s.log))
	router.Use(corsMiddleware())

	router.GET("/health", s.health)

	api := router.Group("/api")
	for id := range s.opts.Registry {
		api.POST("/"+string(id)+"/test", s.testCredentials(id))
	}
	api.GET("/prices/:exchange/:symbol", s.prices)
	api.GET("/klines/:exchange/:symbol/:interval", s.klines)
	api.GET("/symbols/:exchange", s.symbols)

	if s.opts.Store != nil {
		api.GET("/config", s.getConfig)
		api.PUT("/config/:exchange", s.putConfig)
		if s.opts.Tester != nil {
			api.POST("/config/:exchange/test", s.testStored)
			api.POST("/config/:exchange/trading", s.setTrading)
		}
	}

	if s.opts.Poller != nil {
		router.GET("/ws/market", s.stream)
	}

	if s.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		// open websocket streams end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		s.log.Info("stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func failure(msg string) gatewayclient.Envelope {
	return gatewayclient.Envelope{Success: false, Error: msg}
}
