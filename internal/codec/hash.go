package codec

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// SubjectHash maps a subject identifier to its privacy-preserving on-chain
// reference: 0x-prefixed hex of SHA3-256(salt || 0x00 || subject). The salt
// is process-wide, so one subject always maps to the same hash while the
// raw identifier stays unrecoverable.
func SubjectHash(salt, subject string) string {
	h := sha3.New256()
	h.Write([]byte(salt))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
