package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/sentinel"
)

var tracer = otel.Tracer("veritas/ledger")

// Gateway signs and submits registry transactions, waits for inclusion, and
// extracts emitted identifiers from receipts. It owns the signing account's
// sequence number: all outbound submissions for one signer are serialized
// through a single gateway.
type Gateway struct {
	rpc    Client
	signer Signer
	policy retryPolicy
	logger *slog.Logger

	chainID      int64
	gasMarginPct int

	// submitMu serializes send+wait so concurrent callers never race on the
	// signer's nonce.
	submitMu sync.Mutex
	nonce    uint64

	enc cbor.EncMode
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets a logger for retry and failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithRetry overrides the bounded retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(g *Gateway) { g.policy = newRetryPolicy(maxAttempts, baseDelay) }
}

// WithGasSafetyMargin sets the percentage added to raw gas estimates.
func WithGasSafetyMargin(pct int) Option {
	return func(g *Gateway) { g.gasMarginPct = pct }
}

// WithChainID sets the chain identifier embedded in signed payloads and
// error details.
func WithChainID(chainID int64) Option {
	return func(g *Gateway) { g.chainID = chainID }
}

// withSleep replaces the backoff sleeper. Test hook.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.policy.sleep = sleep }
}

// New constructs a Gateway over an RPC client and a signer.
func New(rpc Client, signer Signer, opts ...Option) (*Gateway, error) {
	if rpc == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("build cbor enc mode: %w", err)
	}
	g := &Gateway{
		rpc:          rpc,
		signer:       signer,
		policy:       newRetryPolicy(0, 0),
		gasMarginPct: 20,
		enc:          enc,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Attester returns the submitting account's address.
func (g *Gateway) Attester() id.Address { return g.signer.Address() }

// ChainID returns the chain identifier submissions are bound to.
func (g *Gateway) ChainID() int64 { return g.chainID }

// signedPayload is the canonical transaction body. The nonce binds the blob
// to one slot in the signer's sequence so duplicate sends are recognizable.
type signedPayload struct {
	ChainID int64  `cbor:"1,keyasint"`
	Nonce   uint64 `cbor:"2,keyasint"`
	Intent  Intent `cbor:"3,keyasint"`
}

// Submit signs and sends an intent, waits for inclusion, and returns the
// receipt. Transient failures are retried up to the bounded policy with
// doubling backoff; any other failure propagates immediately. The whole
// call is serialized per gateway to keep nonce usage single-file.
func (g *Gateway) Submit(ctx context.Context, intent Intent) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "ledger.Submit", trace.WithAttributes(
		attribute.String("intent.kind", string(intent.Kind)),
		attribute.Int("intent.items", len(intent.Items)),
	))
	defer span.End()

	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	start := time.Now()
	receipt, err := g.submitLocked(ctx, intent)
	submitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return receipt, nil
}

func (g *Gateway) submitLocked(ctx context.Context, intent Intent) (*Receipt, error) {
	payload, err := g.enc.Marshal(signedPayload{
		ChainID: g.chainID,
		Nonce:   g.nonce,
		Intent:  intent,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCreation, "encode transaction payload")
	}
	// Sign once; retries re-send the identical blob so the node can
	// recognize duplicates.
	signed, err := g.signer.Sign(ctx, payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCreation, "sign transaction")
	}

	var lastErr error
	for attempt := 1; attempt <= g.policy.maxAttempts; attempt++ {
		if err := g.policy.sleep(ctx, g.policy.delay(attempt)); err != nil {
			// Deadline expired mid-retry: surface a timeout, outcome unknown.
			return nil, dErrors.Wrap(err, dErrors.CodeBlockchain, "submission aborted by deadline").
				WithDetails("chain_id", g.chainID, "attempts", attempt-1)
		}
		submitAttempts.Inc()
		if attempt > 1 {
			submitRetries.Inc()
			if g.logger != nil {
				g.logger.WarnContext(ctx, "retrying submission",
					"attempt", attempt, "kind", intent.Kind, "last_error", lastErr)
			}
		}

		receipt, err := g.trySend(ctx, signed)
		if err == nil {
			g.nonce++
			return receipt, nil
		}
		lastErr = err
		if !isTransient(err) {
			submitFailures.WithLabelValues("permanent").Inc()
			return nil, dErrors.Wrap(err, dErrors.CodeBlockchain, "transaction failed").
				WithDetails("chain_id", g.chainID)
		}
	}
	submitFailures.WithLabelValues("retries_exhausted").Inc()
	return nil, dErrors.Wrap(lastErr, dErrors.CodeMaxRetries,
		fmt.Sprintf("submission failed after %d attempts", g.policy.maxAttempts)).
		WithDetails("chain_id", g.chainID, "attempts", g.policy.maxAttempts)
}

// trySend performs one send+wait round trip. An "already known" rejection
// checks for an existing receipt first: the prior attempt may have landed,
// and blindly re-submitting could mint two identifiers for one request.
func (g *Gateway) trySend(ctx context.Context, signed []byte) (*Receipt, error) {
	txHash, err := g.rpc.SendTransaction(ctx, signed)
	if err != nil {
		if isAlreadyKnown(err) {
			if receipt, findErr := g.rpc.FindReceipt(ctx, txHashOf(signed)); findErr == nil {
				return receipt, nil
			}
		}
		return nil, err
	}
	receipt, err := g.rpc.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !receipt.Succeeded() {
		// A reverted transaction is a hard failure, not a transient cause.
		return nil, fmt.Errorf("transaction %s reverted in block %d", receipt.TxHash, receipt.BlockNumber)
	}
	return receipt, nil
}

// txHashOf derives the lookup key for a signed blob. Fake and real clients
// both hash the blob the same way, so FindReceipt resolves duplicates.
func txHashOf(signed []byte) string {
	return HashBlob(signed)
}

// ExtractEmittedID scans receipt logs for the given event signature and
// returns its identifier argument. A successful transaction with no matching
// log means ledger and local state have diverged: hard integrity failure,
// never retried.
func (g *Gateway) ExtractEmittedID(receipt *Receipt, eventSig string) (id.AttestationUID, error) {
	uids, err := g.ExtractEmittedIDs(receipt, eventSig)
	if err != nil {
		return "", err
	}
	return uids[0], nil
}

// ExtractEmittedIDs returns every identifier emitted for the event
// signature, in log order. Batch issuance relies on this order matching the
// submitted item order.
func (g *Gateway) ExtractEmittedIDs(receipt *Receipt, eventSig string) ([]id.AttestationUID, error) {
	raw, err := extractTopics(receipt, eventSig)
	if err != nil {
		return nil, err
	}
	uids := make([]id.AttestationUID, 0, len(raw))
	for _, topic := range raw {
		uid, err := id.ParseAttestationUID(topic)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeCreation,
				fmt.Sprintf("malformed identifier in %s log of tx %s", eventSig, receipt.TxHash))
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

// ExtractEmittedSchemaID returns the schema UID emitted by a registration
// transaction.
func (g *Gateway) ExtractEmittedSchemaID(receipt *Receipt) (id.SchemaUID, error) {
	raw, err := extractTopics(receipt, EventSchemaRegistered)
	if err != nil {
		return "", err
	}
	uid, err := id.ParseSchemaUID(raw[0])
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCreation,
			fmt.Sprintf("malformed schema identifier in tx %s", receipt.TxHash))
	}
	return uid, nil
}

// extractTopics collects the identifier topic of every log matching the
// event signature. Empty result on a successful transaction is a hard
// integrity failure.
func extractTopics(receipt *Receipt, eventSig string) ([]string, error) {
	if receipt == nil {
		return nil, dErrors.New(dErrors.CodeCreation, "no receipt to extract identifiers from")
	}
	var topics []string
	for _, log := range receipt.Logs {
		if log.Signature != eventSig || len(log.Topics) == 0 {
			continue
		}
		topics = append(topics, log.Topics[0])
	}
	if len(topics) == 0 {
		return nil, dErrors.Newf(dErrors.CodeCreation,
			"transaction %s succeeded but emitted no %s event", receipt.TxHash, eventSig)
	}
	return topics, nil
}

// EstimateCost quotes gas and fees for an intent with a fixed safety margin.
func (g *Gateway) EstimateCost(ctx context.Context, intent Intent) (*CostEstimate, error) {
	rawGas, err := g.rpc.EstimateGas(ctx, intent)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBlockchain, "estimate gas").
			WithDetails("chain_id", g.chainID)
	}
	price, err := g.rpc.GasPrice(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBlockchain, "read gas price").
			WithDetails("chain_id", g.chainID)
	}
	gasLimit := rawGas * uint64(100+g.gasMarginPct) / 100
	return &CostEstimate{
		GasLimit:               gasLimit,
		UnitPrice:              price,
		TotalCost:              gasLimit * price,
		ConfirmationETASeconds: confirmationETA(price),
	}, nil
}

// confirmationETA is a coarse function of unit price tiers: the more a
// caller pays per gas, the sooner inclusion is expected.
func confirmationETA(unitPrice uint64) int {
	const gwei = 1_000_000_000
	switch {
	case unitPrice >= 100*gwei:
		return 15
	case unitPrice >= 50*gwei:
		return 30
	case unitPrice >= 20*gwei:
		return 60
	default:
		return 180
	}
}

// Read fetches the registry's current record for an attestation UID.
func (g *Gateway) Read(ctx context.Context, uid id.AttestationUID) (*OnChainRecord, error) {
	record, err := g.rpc.Read(ctx, uid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "attestation %s not found on-chain", uid)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBlockchain, "read on-chain record").
			WithDetails("chain_id", g.chainID)
	}
	return record, nil
}

// ReadSchema fetches the registry's stored registration payload for a schema.
func (g *Gateway) ReadSchema(ctx context.Context, uid id.SchemaUID) ([]byte, error) {
	raw, err := g.rpc.ReadSchema(ctx, uid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeSchemaNotFound, "schema %s not found in registry", uid)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBlockchain, "read schema record").
			WithDetails("chain_id", g.chainID)
	}
	return raw, nil
}
