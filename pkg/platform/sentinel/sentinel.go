package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches, and ledger
// adapters return these (optionally wrapped) so services can translate them
// into domain errors with stable codes.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record/schema/on-chain entry does not exist
// - ErrConflict: write conflicts with existing state
// - ErrExpired: cached entry or record past its validity window
// - ErrInvalidState: entity in wrong lifecycle state for the operation
// - ErrUnavailable: backend temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
