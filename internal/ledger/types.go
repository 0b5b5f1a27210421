package ledger

import (
	"time"

	id "veritas/pkg/domain"
)

// IntentKind names the registry operation a transaction performs.
type IntentKind string

const (
	KindRegisterSchema IntentKind = "register_schema"
	KindAttest         IntentKind = "attest"
	KindRevoke         IntentKind = "revoke"
)

// Event signatures emitted by the external registry contract. The gateway
// matches receipt logs against these to extract assigned identifiers.
const (
	EventSchemaRegistered = "Registered(bytes32,address)"
	EventAttested         = "Attested(address,address,bytes32,bytes32)"
	EventRevoked          = "Revoked(address,address,bytes32,bytes32)"
)

// Intent describes a registry transaction before signing. Attest intents may
// carry multiple items; the registry emits one Attested event per item in
// item order.
type Intent struct {
	Kind      IntentKind
	SchemaUID id.SchemaUID
	Items     []Item
}

// Item is one unit of work inside an intent.
type Item struct {
	Recipient  id.Address
	Expiration uint64 // unix seconds; 0 = never expires
	Revocable  bool
	Data       []byte            // encoded attestation payload
	RefUID     id.AttestationUID // revocation target
}

// Log is one event entry from a transaction receipt. Topics[0] carries the
// emitted identifier for all registry events.
type Log struct {
	Signature string
	Topics    []string
	Data      []byte
}

// Receipt is the ledger's record of an included transaction.
type Receipt struct {
	TxHash            string
	BlockNumber       uint64
	BlockTime         time.Time
	Status            uint64 // 1 = success
	GasUsed           uint64
	EffectiveGasPrice uint64
	Logs              []Log
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool { return r != nil && r.Status == 1 }

// OnChainRecord is the registry's current state for one attestation UID.
type OnChainRecord struct {
	UID            id.AttestationUID
	SchemaUID      id.SchemaUID
	Attester       id.Address
	Recipient      id.Address
	Data           []byte
	Time           uint64 // unix seconds of issuance
	ExpirationTime uint64 // 0 = never expires
	RevocationTime uint64 // 0 = not revoked
	Revocable      bool
}

// Revoked reports whether the record carries a revocation timestamp.
func (r *OnChainRecord) Revoked() bool { return r.RevocationTime != 0 }

// CostEstimate quotes a submission before it happens.
type CostEstimate struct {
	GasLimit               uint64
	UnitPrice              uint64 // wei per gas
	TotalCost              uint64 // wei
	ConfirmationETASeconds int
}
