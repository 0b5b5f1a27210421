package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
	"golang.org/x/crypto/sha3"

	id "veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
)

// MemoryClient is an in-process registry simulation implementing Client.
// It executes intents synchronously, assigns deterministic identifiers, and
// emits the same events a real registry would. Used for development wiring
// and engine tests; error queues inject transient failures.
type MemoryClient struct {
	mu       sync.Mutex
	height   uint64
	receipts map[string]*Receipt
	records  map[id.AttestationUID]*OnChainRecord
	schemas  map[id.SchemaUID][]byte
	balances map[id.Address]uint64

	// SendErrs is consumed one error per SendTransaction call; nil entries
	// let the call through. Test hook.
	SendErrs []error
	// GasEstimate and Price control EstimateGas/GasPrice responses.
	GasEstimate uint64
	Price       uint64
}

// NewMemoryClient builds an empty registry simulation.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		height:      1,
		receipts:    make(map[string]*Receipt),
		records:     make(map[id.AttestationUID]*OnChainRecord),
		schemas:     make(map[id.SchemaUID][]byte),
		balances:    make(map[id.Address]uint64),
		GasEstimate: 90_000,
		Price:       25_000_000_000,
	}
}

func (c *MemoryClient) SendTransaction(ctx context.Context, signed []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.SendErrs) > 0 {
		err := c.SendErrs[0]
		c.SendErrs = c.SendErrs[1:]
		if err != nil {
			return "", err
		}
	}

	txHash := HashBlob(signed)
	if _, exists := c.receipts[txHash]; exists {
		return "", ErrAlreadyKnown
	}

	payload, attester, err := openEnvelope(signed)
	if err != nil {
		return "", fmt.Errorf("malformed transaction: %w", err)
	}

	c.height++
	receipt := &Receipt{
		TxHash:            txHash,
		BlockNumber:       c.height,
		BlockTime:         time.Now(),
		Status:            1,
		GasUsed:           c.GasEstimate,
		EffectiveGasPrice: c.Price,
	}

	if err := c.execute(payload.Intent, attester, txHash, receipt); err != nil {
		return "", err
	}
	c.receipts[txHash] = receipt
	return txHash, nil
}

// execute applies an intent to registry state and appends emitted logs to
// the receipt, one per item in item order.
func (c *MemoryClient) execute(intent Intent, attester id.Address, txHash string, receipt *Receipt) error {
	switch intent.Kind {
	case KindRegisterSchema:
		if len(intent.Items) != 1 {
			return fmt.Errorf("schema registration requires exactly one item")
		}
		uid := id.SchemaUID(deriveUID(txHash, 0))
		c.schemas[uid] = intent.Items[0].Data
		receipt.Logs = append(receipt.Logs, Log{
			Signature: EventSchemaRegistered,
			Topics:    []string{uid.String(), attester.String()},
		})
	case KindAttest:
		for i, item := range intent.Items {
			uid := id.AttestationUID(deriveUID(txHash, i))
			c.records[uid] = &OnChainRecord{
				UID:            uid,
				SchemaUID:      intent.SchemaUID,
				Attester:       attester,
				Recipient:      item.Recipient,
				Data:           item.Data,
				Time:           uint64(receipt.BlockTime.Unix()),
				ExpirationTime: item.Expiration,
				Revocable:      item.Revocable,
			}
			receipt.Logs = append(receipt.Logs, Log{
				Signature: EventAttested,
				Topics:    []string{uid.String(), attester.String(), item.Recipient.String()},
			})
		}
	case KindRevoke:
		for _, item := range intent.Items {
			record, ok := c.records[item.RefUID]
			if !ok {
				return fmt.Errorf("revocation target %s does not exist", item.RefUID)
			}
			if !record.Revocable {
				return fmt.Errorf("attestation %s is not revocable", item.RefUID)
			}
			record.RevocationTime = uint64(receipt.BlockTime.Unix())
			receipt.Logs = append(receipt.Logs, Log{
				Signature: EventRevoked,
				Topics:    []string{record.UID.String(), attester.String()},
			})
		}
	default:
		return fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
	return nil
}

func (c *MemoryClient) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return receipt, nil
}

func (c *MemoryClient) FindReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	return c.WaitForReceipt(ctx, txHash)
}

func (c *MemoryClient) Read(ctx context.Context, uid id.AttestationUID) (*OnChainRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.records[uid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (c *MemoryClient) ReadSchema(ctx context.Context, uid id.SchemaUID) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.schemas[uid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return raw, nil
}

func (c *MemoryClient) EstimateGas(ctx context.Context, intent Intent) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	per := c.GasEstimate
	if n := uint64(len(intent.Items)); n > 1 {
		return per * n, nil
	}
	return per, nil
}

func (c *MemoryClient) GasPrice(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Price, nil
}

func (c *MemoryClient) ChainHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *MemoryClient) Balance(ctx context.Context, addr id.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[addr], nil
}

// TxCount reports how many transactions the registry has included.
func (c *MemoryClient) TxCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.receipts)
}

// Fund credits an account balance. Test hook.
func (c *MemoryClient) Fund(addr id.Address, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] += amount
}

// openEnvelope unwraps a COSE Sign1 blob into its transaction payload and
// the submitting address from the key ID header. Signature verification is
// the real registry's concern; the simulation only needs the contents.
func openEnvelope(signed []byte) (*signedPayload, id.Address, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(signed); err != nil {
		return nil, "", fmt.Errorf("decode cose envelope: %w", err)
	}
	var payload signedPayload
	if err := cbor.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, "", fmt.Errorf("decode transaction payload: %w", err)
	}
	kid, _ := msg.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte)
	attester, err := id.ParseAddress(string(kid))
	if err != nil {
		return nil, "", fmt.Errorf("envelope key id is not an address: %w", err)
	}
	return &payload, attester, nil
}

// deriveUID assigns the identifier for item i of a transaction.
func deriveUID(txHash string, i int) string {
	digest := sha3.Sum256([]byte(fmt.Sprintf("%s/%d", txHash, i)))
	return "0x" + hex.EncodeToString(digest[:])
}
