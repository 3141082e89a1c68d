// Package gateway implements the Kalshi trade API clients.
//
// The REST client (Client) handles order management and account state:
//   - GetMarkets / GetMarket:  market discovery and metadata
//   - GetOrderbook:            snapshot resync when the stream falls behind
//   - PlaceOrder / CancelOrder: the single-order mutation primitives
//   - GetOrders / GetPositions / GetBalance / GetFills: account state
//
// Every request is rate-limited through a shared token bucket and signed
// with RSA-PSS request headers. The WebSocket stream reuses the same signer
// for its connection headers.
package gateway

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const apiPrefix = "/trade-api/v2"

// Signer produces the authentication headers the exchange requires on every
// request: key id, millisecond timestamp, and an RSA-PSS signature over
// timestamp + method + path.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner loads an RSA private key from a PEM file. Both PKCS#1 and
// PKCS#8 encodings are accepted.
func NewSigner(keyID, keyPath string) (*Signer, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode private key: no PEM block in %s", keyPath)
	}

	key, err := parseRSAKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Signer{keyID: keyID, key: key}, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA key: %T", parsed)
	}
	return key, nil
}

// Sign returns the base64 PSS signature over timestampMs + method + path.
// The path must carry the API prefix and no query string.
func (s *Signer) Sign(timestampMs int64, method, path string) (string, error) {
	msg := strconv.FormatInt(timestampMs, 10) + method + path
	digest := sha256.Sum256([]byte(msg))

	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// Headers builds the three auth headers for one request.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	// Query strings are excluded from the signed message.
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	// Relative paths sign against the REST prefix; absolute /trade-api/
	// paths (the WebSocket endpoint) sign as given.
	if !strings.HasPrefix(path, "/trade-api/") {
		path = apiPrefix + path
	}

	ts := time.Now().UnixMilli()
	sig, err := s.Sign(ts, method, path)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       s.keyID,
		"KALSHI-ACCESS-TIMESTAMP": strconv.FormatInt(ts, 10),
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}

// PublicKey exposes the key's public half, used by tests to verify signatures.
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
