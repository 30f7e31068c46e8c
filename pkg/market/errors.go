package market

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is a user-facing validation failure; no request is sent.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrUpstreamUnavailable covers network failures, non-2xx responses and
	// exchange-level error envelopes.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrProxyUnreachable is returned when the proxy gateway itself cannot be reached.
	ErrProxyUnreachable = errors.New("proxy unreachable")

	// ErrMalformedResponse is returned for unexpected upstream shapes. It also
	// matches ErrUpstreamUnavailable.
	ErrMalformedResponse = errors.New("malformed response")

	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrLiveUnsupported     = errors.New("live data not supported")
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrInvalidInterval     = errors.New("invalid interval")
)

// UpstreamError carries the exchange-provided message so it can be relayed
// to clients verbatim.
type UpstreamError struct {
	Exchange ID
	Op       string // e.g. "ticker", "klines", "account"
	Status   int    // HTTP status, 0 when the request never completed
	Message  string // upstream-provided message, may be empty
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Exchange, e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Exchange, e.Op, msg)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *UpstreamError) Unwrap() []error {
	errs := []error{ErrUpstreamUnavailable}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Malformed wraps a decode failure so that it matches both
// ErrMalformedResponse and ErrUpstreamUnavailable.
func Malformed(exchange ID, op string, err error) error {
	return &UpstreamError{
		Exchange: exchange,
		Op:       op,
		Message:  "unexpected response shape",
		Err:      fmt.Errorf("%w: %v", ErrMalformedResponse, err),
	}
}

// Message returns the text that should be shown to a client for err:
// the upstream message when there is one, the error text otherwise.
func Message(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
