// Package blob archives raw verification payloads off-chain. Only the
// subject hash and derived fields go on the ledger; the full provider
// response lives behind this boundary, addressed by an integrity tag.
package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/sentinel"
)

// Ref points at an archived payload. Digest is the SHA3-256 of the
// stored bytes, so a reader can detect tampering without trusting the
// store.
type Ref struct {
	Key    string
	Digest string
	Size   int
}

// Uploader archives payloads and hands back integrity-tagged refs.
type Uploader interface {
	Upload(ctx context.Context, key string, payload []byte) (Ref, error)
	Fetch(ctx context.Context, ref Ref) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Digest computes the integrity tag for a payload.
func Digest(payload []byte) string {
	sum := sha3.Sum256(payload)
	return "0x" + hex.EncodeToString(sum[:])
}

// MemoryUploader keeps payloads in process. Test and single-node use.
type MemoryUploader struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{blobs: make(map[string][]byte)}
}

func (u *MemoryUploader) Upload(ctx context.Context, key string, payload []byte) (Ref, error) {
	if key == "" {
		return Ref{}, dErrors.New(dErrors.CodeInvalidInput, "blob: key is required")
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)

	u.mu.Lock()
	u.blobs[key] = stored
	u.mu.Unlock()

	return Ref{Key: key, Digest: Digest(stored), Size: len(stored)}, nil
}

func (u *MemoryUploader) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	u.mu.RLock()
	stored, ok := u.blobs[ref.Key]
	u.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blob %q: %w", ref.Key, sentinel.ErrNotFound)
	}
	if ref.Digest != "" && Digest(stored) != ref.Digest {
		return nil, dErrors.New(dErrors.CodeInternal, "blob: integrity digest mismatch").
			WithDetails("key", ref.Key)
	}
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, nil
}

func (u *MemoryUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.blobs, key)
	return nil
}
