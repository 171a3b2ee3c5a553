package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// TimestampLayout is the ISO-8601 UTC form used in the hash input.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Digest names the hash function used for entry hashes.
type Digest string

const (
	DigestSHA256     Digest = "sha256"
	DigestBLAKE2b256 Digest = "blake2b-256"
)

func (d Digest) String() string { return string(d) }

func (d Digest) IsValid() bool {
	switch d {
	case DigestSHA256, DigestBLAKE2b256:
		return true
	}
	return false
}

func (d Digest) newHash() (hash.Hash, error) {
	switch d {
	case DigestSHA256, "":
		return sha256.New(), nil
	case DigestBLAKE2b256:
		return blake2b.New256(nil)
	}
	return nil, fmt.Errorf("unsupported digest %q", string(d))
}

// canonicalEntry fixes the field order of the hash input. Do not reorder.
type canonicalEntry struct {
	ID           string          `json:"id"`
	Timestamp    string          `json:"timestamp"`
	ActorID      *string         `json:"actorId"`
	Action       string          `json:"action"`
	Resource     string          `json:"resource"`
	ResourceID   *string         `json:"resourceId"`
	Details      json.RawMessage `json:"details"`
	IPAddress    *string         `json:"ipAddress"`
	UserAgent    *string         `json:"userAgent"`
	PreviousHash *string         `json:"previousHash"`
}

// CanonicalBytes returns the deterministic encoding of every entry field
// except Hash and Sequence.
func CanonicalBytes[A Action](e Entry[A]) ([]byte, error) {
	c := canonicalEntry{
		ID:         e.ID.String(),
		Timestamp:  e.Timestamp.UTC().Format(TimestampLayout),
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
	}
	if len(e.Details) > 0 {
		c.Details = e.Details
	}
	if e.PreviousHash != "" {
		prev := e.PreviousHash
		c.PreviousHash = &prev
	}
	return marshalNoEscape(c)
}

// ComputeHash returns the hex digest of the entry's canonical encoding.
func ComputeHash[A Action](e Entry[A], d Digest) (string, error) {
	payload, err := CanonicalBytes(e)
	if err != nil {
		return "", fmt.Errorf("canonical encoding: %w", err)
	}
	h, err := d.newHash()
	if err != nil {
		return "", err
	}
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON normalizes an arbitrary JSON payload: object keys sorted,
// insignificant whitespace removed, numbers kept verbatim.
func canonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode details: trailing data")
	}
	if v == nil {
		return nil, nil
	}
	return marshalNoEscape(v)
}

// marshalNoEscape encodes like json.Marshal without HTML escaping. U+2028
// and U+2029 are still written as \u2028 and \u2029; that escaped form is
// part of the canonical encoding and must not change.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
