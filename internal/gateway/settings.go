package gateway

import (
	"errors"
	"net/http"

	"marketdesk/internal/connectivity"
	"marketdesk/internal/credstore"
	"marketdesk/pkg/market"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getConfig handles GET /api/config
func (s *Server) getConfig(c *gin.Context) {
	creds, err := s.opts.Store.Load(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.ok(c, creds.WithDefaults().Masked())
}

// putConfig handles PUT /api/config/:exchange
func (s *Server) putConfig(c *gin.Context) {
	id, ok := s.knownExchange(c)
	if !ok {
		return
	}

	var patch credstore.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	cred, err := s.opts.Store.Update(c.Request.Context(), id, patch.Apply)
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.ok(c, cred.Masked())
}

// testStored handles POST /api/config/:exchange/test
func (s *Server) testStored(c *gin.Context) {
	id, ok := s.knownExchange(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	res, err := s.opts.Tester.Test(ctx, id)
	switch {
	case errors.Is(err, market.ErrMissingCredentials):
		s.fail(c, http.StatusBadRequest, missingMessage(s.opts.Registry[id].Prober))
		return
	case err != nil:
		s.internalError(c, err)
		return
	}

	cred, err := s.opts.Store.Get(ctx, id)
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.ok(c, gin.H{"result": res, "config": cred.Masked()})
}

// setTrading handles POST /api/config/:exchange/trading
func (s *Server) setTrading(c *gin.Context) {
	id, ok := s.knownExchange(c)
	if !ok {
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Enabled == nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	cred, err := s.opts.Tester.SetTrading(c.Request.Context(), id, *body.Enabled)
	switch {
	case errors.Is(err, connectivity.ErrTradingLocked):
		s.fail(c, http.StatusConflict, "Test the connection before enabling trading")
		return
	case err != nil:
		s.internalError(c, err)
		return
	}
	s.ok(c, cred.Masked())
}

func (s *Server) knownExchange(c *gin.Context) (market.ID, bool) {
	id := market.ID(c.Param("exchange"))
	if _, ok := s.opts.Registry[id]; !ok || !id.IsKnown() {
		s.fail(c, http.StatusBadRequest, msgUnsupportedExchange)
		return "", false
	}
	return id, true
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("request failed",
		zap.String("request_id", c.GetString(RequestIDContextKey)),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	s.fail(c, http.StatusInternalServerError, "Internal server error")
}
