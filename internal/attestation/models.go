package attestation

import (
	"time"

	"veritas/internal/codec"
	id "veritas/pkg/domain"
)

// Status is the lifecycle state of an issued attestation.
type Status string

const (
	// StatusPending is set the instant a submission is sent. A record
	// stays pending when the ledger outcome is unknown (deadline expired
	// mid-retry) until explicitly reconciled.
	StatusPending Status = "pending"
	// StatusConfirmed means the ledger included the transaction and an
	// identifier was extracted.
	StatusConfirmed Status = "confirmed"
	// StatusFailed means submission failed terminally before inclusion.
	StatusFailed Status = "failed"
	// StatusRevoked is reached only via an explicit revocation call.
	StatusRevoked Status = "revoked"
	// StatusExpired is derived from the expiration timestamp at read
	// time, never written proactively.
	StatusExpired Status = "expired"
)

// Attestation is the issued credential as tracked locally. The ledger
// remains the source of truth; this record carries the bookkeeping the
// chain does not.
type Attestation struct {
	ID        id.AttestationID
	UID       id.AttestationUID
	SchemaUID id.SchemaUID
	Attester  id.Address
	Recipient id.Address

	Data    *codec.AttestationData
	Encoded []byte

	TxHash      string
	BlockNumber uint64
	BlockTime   time.Time
	ChainID     int64

	Status        Status
	Revoked       bool
	RevokedAt     *time.Time
	RevokedReason string

	ExpiresAt *time.Time

	GasUsed  uint64
	GasPrice uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the attestation is past its expiration at the
// given instant. A nil ExpiresAt never expires.
func (a *Attestation) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// CreateOptions tune a single issuance.
type CreateOptions struct {
	// ExpirationHours overrides the configured default. Zero means use
	// the default; a negative value requests no expiration.
	ExpirationHours int
	// SchemaUID overrides the configured default schema.
	SchemaUID id.SchemaUID
	// Revocable marks the attestation revocable on-chain. Defaults true.
	Revocable *bool
}

// BatchRequest is one item of a batch issuance.
type BatchRequest struct {
	Recipient id.Address
	Result    *codec.VerificationResult
	Options   CreateOptions
}

// Predicates are the independent validity checks evaluated on-chain
// state. All must hold for a verification to pass.
type Predicates struct {
	Exists        bool
	SchemaMatches bool
	NotRevoked    bool
	NotExpired    bool
	AttesterValid bool
}

// Failing names the predicates that did not hold, in evaluation order.
func (p Predicates) Failing() []string {
	var out []string
	if !p.Exists {
		out = append(out, "exists")
	}
	if !p.SchemaMatches {
		out = append(out, "schemaMatches")
	}
	if !p.NotRevoked {
		out = append(out, "notRevoked")
	}
	if !p.NotExpired {
		out = append(out, "notExpired")
	}
	if !p.AttesterValid {
		out = append(out, "attesterValid")
	}
	return out
}

// Valid reports whether every predicate holds.
func (p Predicates) Valid() bool {
	return p.Exists && p.SchemaMatches && p.NotRevoked && p.NotExpired && p.AttesterValid
}

// VerifyResult is the outcome of an on-chain verification.
type VerifyResult struct {
	Valid      bool
	Predicates Predicates
	// Data is the decoded payload, attached only when Valid.
	Data *codec.AttestationData
	// Record is the raw on-chain state, attached whenever it exists.
	Record *OnChainSummary
}

// OnChainSummary mirrors the ledger record fields relevant to callers.
type OnChainSummary struct {
	UID       id.AttestationUID
	SchemaUID id.SchemaUID
	Attester  id.Address
	Recipient id.Address
	IssuedAt  time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
	Revocable bool
}
