package ledger

import "time"

// Checkpoint anchors a ledger whose oldest entries were evicted by bounded
// retention. Hash is the hash of the last evicted entry and becomes the
// expected previous hash of the oldest retained entry.
type Checkpoint struct {
	Ledger    string    `json:"ledger"`
	Sequence  uint64    `json:"sequence"`
	Hash      string    `json:"hash"`
	EvictedAt time.Time `json:"evictedAt"`
	Signature string    `json:"signature,omitempty"`
}

// CheckpointSigner signs and verifies checkpoints so that a retained chain
// can be proven back to a trusted anchor instead of genesis.
type CheckpointSigner interface {
	SignCheckpoint(cp Checkpoint) (string, error)
	VerifyCheckpoint(cp Checkpoint) error
}
