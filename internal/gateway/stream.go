package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketdesk/internal/poller"
	"marketdesk/pkg/market"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// stream handles GET /ws/market?exchange&symbol&interval&live&every&kind.
// It subscribes the poller for the lifetime of the connection and pushes
// every snapshot as a JSON text message.
func (s *Server) stream(c *gin.Context) {
	sub, err := parseSubscription(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	h, err := s.opts.Poller.Subscribe(sub)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, market.ErrUnsupportedExchange) {
			msg = msgUnsupportedExchange
		}
		s.fail(c, http.StatusBadRequest, msg)
		return
	}
	defer s.opts.Poller.Unsubscribe(h.ID())

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the client
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.log.With(zap.String("subscription", h.ID()))
	log.Info("stream opened")

	// the client only ever closes; reading surfaces that
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case snap, ok := <-h.Updates():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-closed:
			log.Info("stream closed by client")
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func parseSubscription(c *gin.Context) (poller.Subscription, error) {
	sub := poller.Subscription{
		Exchange: market.ID(c.Query("exchange")),
		Symbol:   c.Query("symbol"),
		Interval: market.Interval(c.Query("interval")),
		Live:     true,
	}

	if v := c.Query("live"); v != "" {
		live, err := strconv.ParseBool(v)
		if err != nil {
			return sub, errors.New("invalid live flag")
		}
		sub.Live = live
	}
	if v := c.Query("every"); v != "" {
		every, err := time.ParseDuration(v)
		if err != nil || every < time.Second {
			return sub, errors.New("invalid poll interval, minimum is 1s")
		}
		sub.PollInterval = every
	}
	kind, err := poller.ParseKind(c.Query("kind"))
	if err != nil {
		return sub, err
	}
	sub.Kind = kind
	return sub, nil
}
