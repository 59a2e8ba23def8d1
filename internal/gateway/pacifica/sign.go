package pacifica

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// Signer holds the agent wallet keypair used to sign every authenticated
// request. The venue verifies an Ed25519 signature over the canonical JSON
// form of the operation header plus the payload nested under "data".
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner decodes a base58 private key. Both the 32-byte seed form and
// the 64-byte seed+pubkey keypair form are accepted.
func NewSigner(encoded string) (*Signer, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(raw)
		return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(raw)
		return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	default:
		return nil, fmt.Errorf("invalid private key length %d, want 32 (seed) or 64 (keypair)", len(raw))
	}
}

// Account returns the base58 wallet address derived from the keypair.
func (s *Signer) Account() string {
	return base58.Encode(s.pub)
}

// Sign produces the canonical message string and its base58 signature.
// The message is the header fields merged with {"data": payload}, keys
// sorted recursively, serialized as compact JSON.
func (s *Signer) Sign(header SignatureHeader, payload map[string]any) (string, string, error) {
	message := map[string]any{"data": payload}
	for k, v := range header.fields() {
		message[k] = v
	}
	canonical, err := canonicalJSON(message)
	if err != nil {
		return "", "", fmt.Errorf("canonicalize message: %w", err)
	}
	sig := ed25519.Sign(s.priv, canonical)
	return string(canonical), base58.Encode(sig), nil
}

// SignatureHeader carries the replay-protection fields signed alongside
// the payload. Kind is the operation name, e.g. "create_market_order".
type SignatureHeader struct {
	Timestamp    int64
	ExpiryWindow int64
	Kind         string
}

func (h SignatureHeader) fields() map[string]any {
	return map[string]any{
		"timestamp":     h.Timestamp,
		"expiry_window": h.ExpiryWindow,
		"type":          h.Kind,
	}
}

// canonicalJSON renders v as compact JSON with object keys in sorted
// order. encoding/json already sorts map keys; the encoder is used
// directly so "<" and "&" in values are not HTML-escaped, keeping the
// bytes identical to what the venue hashes.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
