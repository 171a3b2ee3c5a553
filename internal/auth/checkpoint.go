package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

// CheckpointSigner signs ledger retention checkpoints as HS256 JWTs. The
// token commits to the ledger name, the sequence and hash of the last
// evicted entry, and the eviction time.
type CheckpointSigner struct {
	secret []byte
	issuer string
}

// NewCheckpointSigner creates a signer. secret must be at least 32 characters.
func NewCheckpointSigner(secret, issuer string) *CheckpointSigner {
	return &CheckpointSigner{secret: []byte(secret), issuer: issuer}
}

type checkpointClaims struct {
	jwt.RegisteredClaims
	Ledger   string `json:"ledger"`
	Sequence uint64 `json:"seq"`
	Hash     string `json:"hash"`
}

// SignCheckpoint returns the compact JWT for cp. cp.Signature is ignored.
func (s *CheckpointSigner) SignCheckpoint(cp ledger.Checkpoint) (string, error) {
	claims := checkpointClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  cp.Ledger + ":" + strconv.FormatUint(cp.Sequence, 10),
			IssuedAt: jwt.NewNumericDate(cp.EvictedAt),
		},
		Ledger:   cp.Ledger,
		Sequence: cp.Sequence,
		Hash:     cp.Hash,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign checkpoint: %w", err)
	}
	return signed, nil
}

// VerifyCheckpoint checks that cp.Signature is a valid token for exactly
// the checkpoint's ledger, sequence and hash.
func (s *CheckpointSigner) VerifyCheckpoint(cp ledger.Checkpoint) error {
	if cp.Signature == "" {
		return fmt.Errorf("checkpoint is not signed")
	}

	token, err := jwt.ParseWithClaims(cp.Signature, &checkpointClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithLeeway(time.Minute))
	if err != nil {
		return fmt.Errorf("parse checkpoint signature: %w", err)
	}

	claims, ok := token.Claims.(*checkpointClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid checkpoint claims")
	}

	switch {
	case claims.Ledger != cp.Ledger:
		return fmt.Errorf("checkpoint ledger: signed %q, got %q", claims.Ledger, cp.Ledger)
	case claims.Sequence != cp.Sequence:
		return fmt.Errorf("checkpoint sequence: signed %d, got %d", claims.Sequence, cp.Sequence)
	case claims.Hash != cp.Hash:
		return fmt.Errorf("checkpoint hash: signed %s, got %s", claims.Hash, cp.Hash)
	}
	return nil
}
