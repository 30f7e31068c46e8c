package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"marketdesk/pkg/gatewayclient"
	"marketdesk/pkg/market"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgUnsupportedExchange = "Unsupported exchange"
	msgMissingKeyAndSecret = "Missing apiKey or secretKey"
	msgMissingKey          = "Missing apiKey"
)

// health handles GET /health
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"message": HealthMessage,
	})
}

// testCredentials handles POST /api/<exchange>/test
func (s *Server) testCredentials(id market.ID) gin.HandlerFunc {
	return func(c *gin.Context) {
		ex := s.opts.Registry[id]

		var creds market.Credentials
		// an empty or broken body is reported as missing credentials
		_ = c.ShouldBindJSON(&creds)

		if err := market.ValidateCredentials(ex.Prober, creds); err != nil {
			s.fail(c, http.StatusBadRequest, missingMessage(ex.Prober))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), RequestTimeout)
		defer cancel()

		raw, err := ex.Prober.TestCredentials(ctx, creds)
		if err != nil {
			s.upstreamFailure(c, id, err)
			return
		}
		s.ok(c, raw)
	}
}

// prices handles GET /api/prices/:exchange/:symbol
func (s *Server) prices(c *gin.Context) {
	ex, ok := s.marketExchange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), RequestTimeout)
	defer cancel()

	raw, err := ex.Source.RawTicker(ctx, c.Param("symbol"))
	if err != nil {
		s.upstreamFailure(c, ex.ID, err)
		return
	}
	s.ok(c, raw)
}

// klines handles GET /api/klines/:exchange/:symbol/:interval?limit=N
func (s *Server) klines(c *gin.Context) {
	ex, ok := s.marketExchange(c)
	if !ok {
		return
	}

	limit := DefaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	interval := ex.Intervals.Map(market.Interval(c.Param("interval")))

	ctx, cancel := context.WithTimeout(c.Request.Context(), RequestTimeout)
	defer cancel()

	raw, err := ex.Source.RawKlines(ctx, c.Param("symbol"), interval, limit)
	if err != nil {
		s.upstreamFailure(c, ex.ID, err)
		return
	}
	s.ok(c, raw)
}

// symbols handles GET /api/symbols/:exchange
func (s *Server) symbols(c *gin.Context) {
	ex, ok := s.marketExchange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), RequestTimeout)
	defer cancel()

	raw, err := ex.Source.RawInstruments(ctx)
	if err != nil {
		s.upstreamFailure(c, ex.ID, err)
		return
	}
	s.ok(c, raw)
}

// marketExchange resolves :exchange to an exchange with public market data,
// answering 400 itself when there is none.
func (s *Server) marketExchange(c *gin.Context) (Exchange, bool) {
	ex, ok := s.opts.Registry[market.ID(c.Param("exchange"))]
	if !ok || ex.Source == nil {
		s.fail(c, http.StatusBadRequest, msgUnsupportedExchange)
		return Exchange{}, false
	}
	return ex, true
}

func missingMessage(p market.CredentialProber) string {
	if p.RequiresSecret() {
		return msgMissingKeyAndSecret
	}
	return msgMissingKey
}

func (s *Server) upstreamFailure(c *gin.Context, id market.ID, err error) {
	s.opts.Metrics.UpstreamError(string(id))
	s.log.Warn("upstream request failed",
		zap.String("request_id", c.GetString(RequestIDContextKey)),
		zap.String("exchange", string(id)),
		zap.Error(err),
	)

	msg := market.Message(err)
	var ue *market.UpstreamError
	if errors.As(err, &ue) && ue.Message == "" {
		msg = "Request to " + string(id) + " failed"
	}
	s.fail(c, http.StatusBadRequest, msg)
}

func (s *Server) ok(c *gin.Context, data any) {
	raw, isRaw := data.(json.RawMessage)
	if !isRaw {
		b, err := json.Marshal(data)
		if err != nil {
			s.log.Error("encoding response", zap.Error(err))
			s.fail(c, http.StatusInternalServerError, "Internal server error")
			return
		}
		raw = b
	}
	c.JSON(http.StatusOK, gatewayclient.Envelope{Success: true, Data: raw})
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, failure(msg))
}
