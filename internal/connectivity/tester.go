// Package connectivity runs credential checks against exchanges and keeps
// the stored status in step with the outcome.
package connectivity

import (
	"context"
	"errors"
	"fmt"

	"marketdesk/internal/credstore"
	"marketdesk/internal/notify"
	"marketdesk/pkg/market"

	"go.uber.org/zap"
)

// ErrTradingLocked is returned when trading is switched on for an exchange
// whose last test did not succeed.
var ErrTradingLocked = errors.New("trading locked until connection test succeeds")

const supersededMessage = "Credentials changed during the connection test"

// Result is the transient outcome of one test.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Tester struct {
	store   *credstore.Store
	probers map[market.ID]market.CredentialProber
	notify  notify.Notifier
	log     *zap.Logger
}

func NewTester(store *credstore.Store, probers map[market.ID]market.CredentialProber, n notify.Notifier, log *zap.Logger) *Tester {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tester{store: store, probers: probers, notify: n, log: log}
}

// Test probes the stored credentials of id. Missing credentials fail with
// market.ErrMissingCredentials before any status change or network call.
// Upstream rejections are reported through Result, not as an error.
func (t *Tester) Test(ctx context.Context, id market.ID) (Result, error) {
	prober, ok := t.probers[id]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", market.ErrUnsupportedExchange, id)
	}

	cred, err := t.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := market.ValidateCredentials(prober, cred.Market()); err != nil {
		return Result{}, err
	}

	if _, err := t.store.Update(ctx, id, func(c *credstore.Credential) {
		c.Status = credstore.StatusTesting
	}); err != nil {
		return Result{}, err
	}

	_, probeErr := prober.TestCredentials(ctx, cred.Market())
	success := probeErr == nil

	// the outcome only belongs to the credentials that were tested
	var superseded bool
	if _, err := t.store.Update(ctx, id, func(c *credstore.Credential) {
		if c.Market() != cred.Market() {
			superseded = true
			return
		}
		if success {
			c.Status = credstore.StatusConnected
		} else {
			c.Status = credstore.StatusError
		}
		c.Enabled = success
	}); err != nil {
		return Result{}, err
	}

	if superseded {
		t.log.Info("credentials changed during connection test, result dropped", zap.String("exchange", string(id)))
		return Result{Success: false, Error: supersededMessage}, nil
	}

	if !success {
		t.log.Warn("connection test failed", zap.String("exchange", string(id)), zap.Error(probeErr))
		t.notify.Notify(ctx, fmt.Sprintf("Failed to connect to %s: %s", id, market.Message(probeErr)))
		return Result{Success: false, Error: market.Message(probeErr)}, nil
	}

	t.log.Info("connection test succeeded", zap.String("exchange", string(id)))
	t.notify.Notify(ctx, fmt.Sprintf("Successfully connected to %s", id))
	return Result{Success: true}, nil
}

// SetTrading toggles the enabled flag. Enabling requires a connected status;
// disabling is always allowed.
func (t *Tester) SetTrading(ctx context.Context, id market.ID, on bool) (credstore.Credential, error) {
	var locked bool
	cred, err := t.store.Update(ctx, id, func(c *credstore.Credential) {
		if on && c.Status != credstore.StatusConnected {
			locked = true
			return
		}
		c.Enabled = on
	})
	if err != nil {
		return credstore.Credential{}, err
	}
	if locked {
		return cred, ErrTradingLocked
	}
	return cred, nil
}
