package ledger

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// HashBlob derives the transaction hash of a signed blob: 0x-prefixed
// SHA3-256 hex. Real nodes and fakes both key receipts by this value, which
// lets the gateway look up a receipt for a blob the node claims to have
// seen before.
func HashBlob(signed []byte) string {
	digest := sha3.Sum256(signed)
	return "0x" + hex.EncodeToString(digest[:])
}
