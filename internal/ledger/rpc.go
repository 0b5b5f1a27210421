package ledger

import (
	"context"

	id "veritas/pkg/domain"
)

// Client is the narrow RPC boundary to the external attestation registry.
// Implementations talk to a real node; tests inject fakes. The boundary is
// unreliable: every call may time out or fail transiently, and no two calls
// are atomic with respect to each other.
type Client interface {
	// SendTransaction submits a signed transaction blob and returns its hash.
	SendTransaction(ctx context.Context, signed []byte) (string, error)

	// WaitForReceipt blocks until the transaction is included or ctx expires.
	WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// FindReceipt returns the receipt for a transaction if one already
	// exists, or sentinel.ErrNotFound. Used to resolve "already known"
	// submissions without re-sending.
	FindReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// Read returns the registry's current record for an attestation UID,
	// or sentinel.ErrNotFound.
	Read(ctx context.Context, uid id.AttestationUID) (*OnChainRecord, error)

	// ReadSchema returns the registry's raw schema record (the stored
	// registration payload), or sentinel.ErrNotFound.
	ReadSchema(ctx context.Context, uid id.SchemaUID) ([]byte, error)

	// EstimateGas returns the raw gas estimate for an intent.
	EstimateGas(ctx context.Context, intent Intent) (uint64, error)

	// GasPrice returns the current network unit price in wei.
	GasPrice(ctx context.Context) (uint64, error)

	// ChainHeight returns the current block number.
	ChainHeight(ctx context.Context) (uint64, error)

	// Balance returns the account balance in wei.
	Balance(ctx context.Context, addr id.Address) (uint64, error)
}
