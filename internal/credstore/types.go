package credstore

import (
	"strings"

	"marketdesk/pkg/market"
)

// Status is the outcome of the last connectivity test.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusTesting      Status = "testing"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Credential is the stored configuration of one exchange.
type Credential struct {
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
	Testnet   bool   `json:"testnet"`
	Enabled   bool   `json:"enabled"`
	Status    Status `json:"status"`
}

// Market returns the subset handed to exchange probers.
func (c Credential) Market() market.Credentials {
	return market.Credentials{APIKey: c.APIKey, SecretKey: c.SecretKey, Testnet: c.Testnet}
}

// Masked hides all but the last four characters of each secret.
func (c Credential) Masked() Credential {
	c.APIKey = mask(c.APIKey)
	c.SecretKey = mask(c.SecretKey)
	return c
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// Credentials maps exchange id to its credential.
type Credentials map[market.ID]Credential

// Defaults returns every known exchange, empty and disconnected.
func Defaults() Credentials {
	out := make(Credentials, len(market.Exchanges))
	for _, id := range market.Exchanges {
		out[id] = Credential{Status: StatusDisconnected}
	}
	return out
}

// Lookup returns the credential for id, or an empty disconnected one when
// the mapping has no entry.
func (c Credentials) Lookup(id market.ID) Credential {
	if cred, ok := c[id]; ok {
		return cred
	}
	return Credential{Status: StatusDisconnected}
}

// WithDefaults returns a copy that lists every known exchange.
func (c Credentials) WithDefaults() Credentials {
	out := Defaults()
	for id, cred := range c {
		out[id] = cred
	}
	return out
}

// Masked returns a copy safe to show to clients.
func (c Credentials) Masked() Credentials {
	out := make(Credentials, len(c))
	for id, cred := range c {
		out[id] = cred.Masked()
	}
	return out
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	APIKey    *string `json:"apiKey"`
	SecretKey *string `json:"secretKey"`
	Testnet   *bool   `json:"testnet"`
}

// Apply copies the set fields of p onto c. Changing any credential field
// invalidates a previous connectivity result.
func (p Patch) Apply(c *Credential) {
	changed := false
	if p.APIKey != nil && *p.APIKey != c.APIKey {
		c.APIKey = *p.APIKey
		changed = true
	}
	if p.SecretKey != nil && *p.SecretKey != c.SecretKey {
		c.SecretKey = *p.SecretKey
		changed = true
	}
	if p.Testnet != nil && *p.Testnet != c.Testnet {
		c.Testnet = *p.Testnet
		changed = true
	}
	if changed {
		c.Status = StatusDisconnected
		c.Enabled = false
	}
}
