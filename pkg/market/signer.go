package market

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// Signer appends an HMAC-SHA256 signature to a canonical query string.
type Signer struct {
	secret         string
	signatureParam string // "signature" for Binance, "sign" for Bybit
	now            func() time.Time
}

// NewSigner creates a signer keyed with the caller's secret.
func NewSigner(secret, signatureParam string) *Signer {
	return &Signer{
		secret:         secret,
		signatureParam: signatureParam,
		now:            time.Now,
	}
}

// Sign adds a millisecond timestamp to params, encodes them in key order and
// returns the query with the signature appended as the last parameter.
func (s *Signer) Sign(params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(s.now().UnixMilli(), 10))

	query := params.Encode()
	return query + "&" + s.signatureParam + "=" + computeHmacSha256(query, s.secret)
}

func computeHmacSha256(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
