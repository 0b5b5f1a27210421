// Package domain holds shared identifier types. Typed IDs make it a compile
// error to pass an attestation UID where a schema UID is expected.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "veritas/pkg/domain-errors"
)

// AttestationID is the engine-local identifier of an issued attestation.
// It is assigned before submission and never changes; the ledger UID is
// assigned later by the registry.
type AttestationID uuid.UUID

// NewAttestationID returns a fresh random attestation ID.
func NewAttestationID() AttestationID {
	return AttestationID(uuid.New())
}

// ParseAttestationID validates and returns an AttestationID.
func ParseAttestationID(s string) (AttestationID, error) {
	u, err := parseUUID(s, "attestation id")
	return AttestationID(u), err
}

func (id AttestationID) String() string { return uuid.UUID(id).String() }
func (id AttestationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", what)
	}
	return u, nil
}

// UID is a registry-assigned 32-byte identifier, rendered as 0x-prefixed
// lowercase hex. Both attestations and schemas are addressed this way.
type uidString string

func parseUID(s, what string) (uidString, error) {
	if s == "" {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", what)
	}
	raw, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok || len(raw) != 64 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s must be 0x-prefixed 32-byte hex", what)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s contains non-hex characters", what)
	}
	return uidString("0x" + raw), nil
}

// AttestationUID is the registry-assigned unique reference to one
// attestation, extracted from the registration transaction's emitted event.
type AttestationUID string

// ParseAttestationUID validates and normalizes an attestation UID.
func ParseAttestationUID(s string) (AttestationUID, error) {
	u, err := parseUID(s, "attestation uid")
	return AttestationUID(u), err
}

func (u AttestationUID) String() string { return string(u) }
func (u AttestationUID) IsZero() bool   { return u == "" }

// SchemaUID identifies a registered schema in the registry.
type SchemaUID string

// ParseSchemaUID validates and normalizes a schema UID.
func ParseSchemaUID(s string) (SchemaUID, error) {
	u, err := parseUID(s, "schema uid")
	return SchemaUID(u), err
}

func (u SchemaUID) String() string { return string(u) }
func (u SchemaUID) IsZero() bool   { return u == "" }

// Address is a ledger account address: 0x-prefixed 20-byte hex,
// normalized to lowercase.
type Address string

// ParseAddress validates and normalizes an account address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	raw, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok || len(raw) != 40 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 0x-prefixed 20-byte hex")
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address contains non-hex characters")
	}
	return Address("0x" + raw), nil
}

func (a Address) String() string { return string(a) }
func (a Address) IsZero() bool   { return a == "" }
