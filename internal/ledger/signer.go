package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/veraison/go-cose"
	"golang.org/x/crypto/sha3"

	id "veritas/pkg/domain"
)

// Signer produces signed transaction blobs for the registry. The gateway
// owns exactly one signer; its account's sequence number must never be
// shared across gateways.
type Signer interface {
	// Sign wraps the canonical intent payload in a signed envelope.
	Sign(ctx context.Context, payload []byte) ([]byte, error)

	// Address returns the submitting account's address.
	Address() id.Address
}

// CoseSigner signs intent payloads as COSE Sign1 envelopes with Ed25519.
// The RPC boundary receives the CBOR-encoded envelope as the signed blob.
type CoseSigner struct {
	key  ed25519.PrivateKey
	addr id.Address
}

// NewCoseSigner builds a signer from a hex-encoded Ed25519 seed.
func NewCoseSigner(seedHex string) (*CoseSigner, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode signing key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	return &CoseSigner{
		key:  key,
		addr: deriveAddress(key.Public().(ed25519.PublicKey)),
	}, nil
}

// GenerateCoseSigner creates a signer with a fresh random key. Development
// and test use only.
func GenerateCoseSigner() (*CoseSigner, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &CoseSigner{key: key, addr: deriveAddress(pub)}, nil
}

func (s *CoseSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, s.key)
	if err != nil {
		return nil, fmt.Errorf("build cose signer: %w", err)
	}
	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: cose.AlgorithmEdDSA,
		},
		Unprotected: cose.UnprotectedHeader{
			cose.HeaderLabelKeyID: []byte(s.addr),
		},
	}
	signed, err := cose.Sign1(rand.Reader, signer, headers, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("cose sign1: %w", err)
	}
	return signed, nil
}

func (s *CoseSigner) Address() id.Address { return s.addr }

// deriveAddress maps a public key to a 20-byte account address: the last
// 20 bytes of the SHA3-256 digest of the raw key.
func deriveAddress(pub ed25519.PublicKey) id.Address {
	digest := sha3.Sum256(pub)
	return id.Address("0x" + hex.EncodeToString(digest[12:]))
}
