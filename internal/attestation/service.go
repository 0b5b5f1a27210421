// Package attestation orchestrates issuance, verification and
// revocation of on-chain KYC attestations: rate check, privacy
// transform, schema encoding, retry-guarded submission, persistence.
package attestation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritas/internal/audit"
	"veritas/internal/blob"
	"veritas/internal/codec"
	"veritas/internal/ledger"
	"veritas/internal/schema"
	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/requestcontext"
)

var tracer = otel.Tracer("veritas/attestation")

// Ledger is the narrow gateway surface the engine depends on.
type Ledger interface {
	Submit(ctx context.Context, intent ledger.Intent) (*ledger.Receipt, error)
	ExtractEmittedIDs(receipt *ledger.Receipt, eventSig string) ([]id.AttestationUID, error)
	Read(ctx context.Context, uid id.AttestationUID) (*ledger.OnChainRecord, error)
	EstimateCost(ctx context.Context, intent ledger.Intent) (*ledger.CostEstimate, error)
	Attester() id.Address
	ChainID() int64
}

// SchemaSource resolves schema definitions for encoding and decoding.
type SchemaSource interface {
	Get(ctx context.Context, uid id.SchemaUID) (*schema.Definition, error)
}

// RateLimiter reserves issuance slots atomically or denies. Release
// hands slots back when a multi-recipient reservation is abandoned.
type RateLimiter interface {
	CheckAndReserve(ctx context.Context, recipient string) error
	CheckAndReserveN(ctx context.Context, recipient string, n int) error
	Release(ctx context.Context, recipient string, n int) error
}

// Settings are the engine's operating parameters.
type Settings struct {
	DefaultSchemaUID       id.SchemaUID
	DefaultExpirationHours int
	RevocationEnabled      bool
	BatchSize              int
	CacheTTL               time.Duration
}

// Service is the attestation engine.
type Service struct {
	ledger      Ledger
	schemas     SchemaSource
	transformer *codec.Transformer
	codec       *codec.Codec
	limiter     RateLimiter
	store       Store
	cache       *readCache
	blobs       blob.Uploader
	auditor     *audit.Publisher
	logger      *slog.Logger
	settings    Settings
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithBlobUploader mirrors confirmed attestations to blob storage.
// Upload failures degrade, they never fail an issuance.
func WithBlobUploader(uploader blob.Uploader) Option {
	return func(s *Service) {
		s.blobs = uploader
	}
}

// WithAuditPublisher records domain actions on the audit trail.
func WithAuditPublisher(publisher *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

// New constructs the engine. All listed dependencies are required.
func New(
	gw Ledger,
	schemas SchemaSource,
	transformer *codec.Transformer,
	enc *codec.Codec,
	limiter RateLimiter,
	store Store,
	settings Settings,
	opts ...Option,
) (*Service, error) {
	if gw == nil {
		return nil, errors.New("attestation: ledger gateway is required")
	}
	if schemas == nil {
		return nil, errors.New("attestation: schema source is required")
	}
	if transformer == nil {
		return nil, errors.New("attestation: transformer is required")
	}
	if enc == nil {
		return nil, errors.New("attestation: codec is required")
	}
	if limiter == nil {
		return nil, errors.New("attestation: rate limiter is required")
	}
	if store == nil {
		return nil, errors.New("attestation: store is required")
	}
	if settings.DefaultSchemaUID == "" {
		return nil, errors.New("attestation: default schema uid is required")
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = 10
	}

	s := &Service{
		ledger:      gw,
		schemas:     schemas,
		transformer: transformer,
		codec:       enc,
		limiter:     limiter,
		store:       store,
		cache:       newReadCache(settings.CacheTTL),
		logger:      slog.Default(),
		settings:    settings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create issues one attestation for a completed verification result.
// The record is persisted as pending before submission and promoted to
// confirmed only after the ledger includes the transaction and an
// identifier is extracted.
func (s *Service) Create(ctx context.Context, recipient id.Address, result *codec.VerificationResult, opts CreateOptions) (*Attestation, error) {
	ctx, span := tracer.Start(ctx, "attestation.Create", trace.WithAttributes(
		attribute.String("recipient", recipient.String()),
	))
	defer span.End()

	start := requestcontext.Now(ctx)

	prepared, err := s.prepare(ctx, recipient, result, opts)
	if err != nil {
		issuances.WithLabelValues("rejected").Inc()
		span.RecordError(err)
		return nil, err
	}

	if err := s.limiter.CheckAndReserve(ctx, recipient.String()); err != nil {
		issuances.WithLabelValues("rate_limited").Inc()
		s.emit(ctx, audit.Event{
			Action:    audit.ActionRateLimitExceeded,
			Recipient: recipient.String(),
		})
		span.RecordError(err)
		return nil, err
	}

	record := s.newRecord(prepared, start)
	if err := s.store.Insert(ctx, record); err != nil {
		issuances.WithLabelValues("store_error").Inc()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist pending attestation")
	}

	receipt, err := s.ledger.Submit(ctx, ledger.Intent{
		Kind:      ledger.KindAttest,
		SchemaUID: prepared.schemaUID,
		Items:     []ledger.Item{prepared.item},
	})
	if err != nil {
		s.markFailed(ctx, record, err)
		issuances.WithLabelValues("submit_error").Inc()
		span.RecordError(err)
		return nil, err
	}

	uids, err := s.ledger.ExtractEmittedIDs(receipt, ledger.EventAttested)
	if err != nil {
		// The transaction succeeded but its identifier is missing: local
		// and ledger state have diverged, reconcile manually.
		s.markFailed(ctx, record, err)
		issuances.WithLabelValues("extract_error").Inc()
		span.RecordError(err)
		return nil, err
	}

	s.confirm(ctx, record, receipt, uids[0])
	s.mirror(ctx, record)

	s.emit(ctx, audit.Event{
		Action:        audit.ActionAttestationCreated,
		AttestationID: record.ID.String(),
		Recipient:     record.Recipient.String(),
		SchemaUID:     record.SchemaUID.String(),
		TxHash:        record.TxHash,
		Outcome:       string(record.Status),
	})

	issuances.WithLabelValues("confirmed").Inc()
	issuanceDuration.Observe(requestcontext.Now(ctx).Sub(start).Seconds())
	s.logger.InfoContext(ctx, "attestation issued",
		"attestation_id", record.ID,
		"uid", record.UID,
		"recipient", record.Recipient,
		"tx_hash", record.TxHash,
	)
	return record, nil
}

// preparedItem carries the validated, encoded form of one request.
type preparedItem struct {
	recipient id.Address
	data      *codec.AttestationData
	encoded   []byte
	schemaUID id.SchemaUID
	item      ledger.Item
	expiresAt *time.Time
	revocable bool
}

// prepare validates and encodes without side effects, so batch
// issuance can fail fast before any mutation.
func (s *Service) prepare(ctx context.Context, recipient id.Address, result *codec.VerificationResult, opts CreateOptions) (*preparedItem, error) {
	if result == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verification result is required")
	}
	if result.Status != codec.ResultCompleted {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verification result is not completed").
			WithDetails("status", string(result.Status))
	}

	schemaUID := opts.SchemaUID
	if schemaUID == "" {
		schemaUID = s.settings.DefaultSchemaUID
	}
	def, err := s.schemas.Get(ctx, schemaUID)
	if err != nil {
		return nil, err
	}

	data, err := s.transformer.Transform(result, recipient)
	if err != nil {
		return nil, err
	}
	encoded, err := s.codec.Encode(data, def)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	expiresAt, expiration := s.expiration(now, opts.ExpirationHours)

	revocable := true
	if opts.Revocable != nil {
		revocable = *opts.Revocable
	}

	return &preparedItem{
		recipient: recipient,
		data:      data,
		encoded:   encoded,
		schemaUID: schemaUID,
		item: ledger.Item{
			Recipient:  recipient,
			Expiration: expiration,
			Revocable:  revocable,
			Data:       encoded,
		},
		expiresAt: expiresAt,
		revocable: revocable,
	}, nil
}

// expiration resolves the per-request override against the configured
// default. Negative hours means never expires.
func (s *Service) expiration(now time.Time, hours int) (*time.Time, uint64) {
	switch {
	case hours < 0:
		return nil, 0
	case hours == 0:
		hours = s.settings.DefaultExpirationHours
	}
	if hours <= 0 {
		return nil, 0
	}
	at := now.Add(time.Duration(hours) * time.Hour)
	return &at, uint64(at.Unix())
}

func (s *Service) newRecord(prepared *preparedItem, now time.Time) *Attestation {
	return &Attestation{
		ID:        id.NewAttestationID(),
		SchemaUID: prepared.schemaUID,
		Attester:  s.ledger.Attester(),
		Recipient: prepared.recipient,
		Data:      prepared.data,
		Encoded:   prepared.encoded,
		ChainID:   s.ledger.ChainID(),
		Status:    StatusPending,
		ExpiresAt: prepared.expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// markFailed moves a pending record to failed unless the outcome is
// unknown (deadline mid-retry), in which case it stays pending for
// reconciliation.
func (s *Service) markFailed(ctx context.Context, record *Attestation, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		s.logger.WarnContext(ctx, "submission outcome unknown, record left pending",
			"attestation_id", record.ID,
			"error", cause,
		)
		return
	}
	record.Status = StatusFailed
	record.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark attestation failed",
			"attestation_id", record.ID,
			"error", err,
		)
	}
	if dErrors.HasCode(cause, dErrors.CodeMaxRetries) {
		s.emit(ctx, audit.Event{
			Action:        audit.ActionSubmissionExhausted,
			AttestationID: record.ID.String(),
			Recipient:     record.Recipient.String(),
			Outcome:       "failed",
			Details:       map[string]string{"error": cause.Error()},
		})
	}
}

// confirm promotes the record and persists it. Persistence failure
// after ledger confirmation is the one recognized gap: the credential
// is already valid on-chain, so it is logged as a distinguishable
// warning and the record is still returned.
func (s *Service) confirm(ctx context.Context, record *Attestation, receipt *ledger.Receipt, uid id.AttestationUID) {
	record.UID = uid
	record.TxHash = receipt.TxHash
	record.BlockNumber = receipt.BlockNumber
	record.BlockTime = receipt.BlockTime
	record.GasUsed = receipt.GasUsed
	record.GasPrice = receipt.EffectiveGasPrice
	record.Status = StatusConfirmed
	record.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, record); err != nil {
		persistenceGaps.Inc()
		s.logger.WarnContext(ctx, "attestation confirmed on-chain but not persisted",
			"attestation_id", record.ID,
			"uid", record.UID,
			"tx_hash", record.TxHash,
			"error", err,
		)
		s.emit(ctx, audit.Event{
			Action:        audit.ActionConfirmedNotStored,
			AttestationID: record.ID.String(),
			Recipient:     record.Recipient.String(),
			TxHash:        record.TxHash,
		})
	}
	s.cache.put(record, requestcontext.Now(ctx))
}

// mirror uploads a JSON copy of a confirmed attestation to blob
// storage. Failures degrade only.
func (s *Service) mirror(ctx context.Context, record *Attestation) {
	if s.blobs == nil {
		return
	}
	payload, err := json.Marshal(struct {
		Type        string                 `json:"type"`
		ID          string                 `json:"id"`
		UID         string                 `json:"uid"`
		SchemaUID   string                 `json:"schema_uid"`
		Recipient   string                 `json:"recipient"`
		TxHash      string                 `json:"tx_hash"`
		Data        *codec.AttestationData `json:"data"`
		ContentHash string                 `json:"content_hash"`
	}{
		Type:        "attestation",
		ID:          record.ID.String(),
		UID:         record.UID.String(),
		SchemaUID:   record.SchemaUID.String(),
		Recipient:   record.Recipient.String(),
		TxHash:      record.TxHash,
		Data:        record.Data,
		ContentHash: blob.Digest(record.Encoded),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "blob mirror marshal failed", "attestation_id", record.ID, "error", err)
		return
	}
	key := fmt.Sprintf("attestations/%s.json", record.ID)
	if _, err := s.blobs.Upload(ctx, key, payload); err != nil {
		s.logger.WarnContext(ctx, "blob mirror degraded",
			"attestation_id", record.ID,
			"error", err,
		)
	}
}

// Get returns an attestation by internal id, cache-first. On a cache
// miss the record is refreshed against ledger truth.
func (s *Service) Get(ctx context.Context, attID id.AttestationID) (*Attestation, error) {
	now := requestcontext.Now(ctx)
	if record, ok := s.cache.get(attID, now); ok {
		return record, nil
	}

	record, err := s.store.FindByID(ctx, attID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "attestation not found").
				WithDetails("attestation_id", attID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load attestation")
	}

	if record.UID != "" {
		if err := s.refresh(ctx, record); err != nil {
			return nil, err
		}
	}
	s.cache.put(record, now)
	return record, nil
}

// refresh reconciles a local record with on-chain state.
func (s *Service) refresh(ctx context.Context, record *Attestation) error {
	verdict, err := s.Verify(ctx, record.UID)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	if verdict.Record != nil && verdict.Record.RevokedAt != nil && !record.Revoked {
		record.Revoked = true
		record.RevokedAt = verdict.Record.RevokedAt
		record.Status = StatusRevoked
		record.UpdatedAt = now
		if err := s.store.Update(ctx, record); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist revocation state",
				"attestation_id", record.ID, "error", err)
		}
		return nil
	}
	if record.Status == StatusConfirmed && record.Expired(now) {
		record.Status = StatusExpired
	}
	return nil
}

// Verify reads on-chain state for a uid and evaluates the validity
// predicates. A missing record is a negative verdict, not an error.
func (s *Service) Verify(ctx context.Context, uid id.AttestationUID) (*VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "attestation.Verify", trace.WithAttributes(
		attribute.String("uid", uid.String()),
	))
	defer span.End()

	onchain, err := s.ledger.Read(ctx, uid)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			verifications.WithLabelValues("missing").Inc()
			return &VerifyResult{Predicates: Predicates{
				SchemaMatches: true,
				NotRevoked:    true,
				NotExpired:    true,
				AttesterValid: true,
			}}, nil
		}
		verifications.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	preds := Predicates{
		Exists:        true,
		SchemaMatches: onchain.SchemaUID == s.settings.DefaultSchemaUID,
		NotRevoked:    onchain.RevocationTime == 0,
		NotExpired:    onchain.ExpirationTime == 0 || uint64(now.Unix()) <= onchain.ExpirationTime,
		AttesterValid: onchain.Attester == s.ledger.Attester(),
	}

	result := &VerifyResult{
		Valid:      preds.Valid(),
		Predicates: preds,
		Record:     summarize(onchain),
	}

	if result.Valid {
		def, err := s.schemas.Get(ctx, onchain.SchemaUID)
		if err != nil {
			verifications.WithLabelValues("error").Inc()
			return nil, err
		}
		data, err := s.codec.Decode(onchain.Data, def)
		if err != nil {
			verifications.WithLabelValues("error").Inc()
			return nil, err
		}
		result.Data = data
		verifications.WithLabelValues("valid").Inc()
	} else {
		verifications.WithLabelValues("invalid").Inc()
		s.logger.InfoContext(ctx, "verification failed",
			"uid", uid,
			"failing", preds.Failing(),
		)
	}

	s.emit(ctx, audit.Event{
		Action:  audit.ActionVerificationRun,
		Outcome: verdictLabel(result.Valid),
		Details: map[string]string{"uid": uid.String()},
	})
	return result, nil
}

func verdictLabel(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

func summarize(onchain *ledger.OnChainRecord) *OnChainSummary {
	summary := &OnChainSummary{
		UID:       onchain.UID,
		SchemaUID: onchain.SchemaUID,
		Attester:  onchain.Attester,
		Recipient: onchain.Recipient,
		IssuedAt:  time.Unix(int64(onchain.Time), 0).UTC(),
		Revocable: onchain.Revocable,
	}
	if onchain.ExpirationTime != 0 {
		at := time.Unix(int64(onchain.ExpirationTime), 0).UTC()
		summary.ExpiresAt = &at
	}
	if onchain.RevocationTime != 0 {
		at := time.Unix(int64(onchain.RevocationTime), 0).UTC()
		summary.RevokedAt = &at
	}
	return summary
}

// Revoke submits a revocation for an issued attestation and updates the
// local record. Requires revocation to be enabled.
func (s *Service) Revoke(ctx context.Context, attID id.AttestationID, reason string) (*Attestation, error) {
	ctx, span := tracer.Start(ctx, "attestation.Revoke", trace.WithAttributes(
		attribute.String("attestation_id", attID.String()),
	))
	defer span.End()

	if !s.settings.RevocationEnabled {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "revocation is disabled")
	}

	record, err := s.store.FindByID(ctx, attID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "attestation not found").
				WithDetails("attestation_id", attID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load attestation")
	}
	if record.Status != StatusConfirmed {
		return nil, dErrors.New(dErrors.CodeConflict, "attestation is not confirmed").
			WithDetails("status", string(record.Status))
	}
	if record.Revoked {
		return nil, dErrors.New(dErrors.CodeConflict, "attestation is already revoked")
	}

	_, err = s.ledger.Submit(ctx, ledger.Intent{
		Kind:      ledger.KindRevoke,
		SchemaUID: record.SchemaUID,
		Items:     []ledger.Item{{Recipient: record.Recipient, RefUID: record.UID}},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record.Revoked = true
	record.RevokedAt = &now
	record.RevokedReason = reason
	record.Status = StatusRevoked
	record.UpdatedAt = now
	if err := s.store.Update(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "revocation confirmed on-chain but not persisted",
			"attestation_id", record.ID, "error", err)
	}
	// Drop the cached copy so the next read goes back to ledger truth.
	s.cache.evict(record.ID)

	revocations.Inc()
	s.emit(ctx, audit.Event{
		Action:        audit.ActionAttestationRevoked,
		AttestationID: record.ID.String(),
		Recipient:     record.Recipient.String(),
		Details:       map[string]string{"reason": reason},
	})
	s.logger.InfoContext(ctx, "attestation revoked", "attestation_id", record.ID, "reason", reason)
	return record, nil
}

// EstimateCost quotes the ledger cost of issuing for this result. No
// rate-limit slot is consumed.
func (s *Service) EstimateCost(ctx context.Context, recipient id.Address, result *codec.VerificationResult) (*ledger.CostEstimate, error) {
	prepared, err := s.prepare(ctx, recipient, result, CreateOptions{})
	if err != nil {
		return nil, err
	}
	return s.ledger.EstimateCost(ctx, ledger.Intent{
		Kind:      ledger.KindAttest,
		SchemaUID: prepared.schemaUID,
		Items:     []ledger.Item{prepared.item},
	})
}

// ListByRecipient returns locally tracked attestations for a recipient.
func (s *Service) ListByRecipient(ctx context.Context, recipient id.Address) ([]*Attestation, error) {
	records, err := s.store.ListByRecipient(ctx, recipient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list attestations")
	}
	now := requestcontext.Now(ctx)
	for _, record := range records {
		if record.Status == StatusConfirmed && record.Expired(now) {
			record.Status = StatusExpired
		}
	}
	return records, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, event)
}
