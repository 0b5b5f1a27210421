package attestation

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"veritas/internal/audit"
	"veritas/internal/ledger"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/requestcontext"
)

// CreateBatch issues attestations for multiple recipients in chunked
// multi-item submissions. Every request is validated and encoded before
// any mutation; a validation or rate-limit failure rejects the whole
// batch and leaves every recipient's quota untouched. Returned
// records are positionally aligned with the input: result[i] belongs to
// requests[i]. Chunks are submitted sequentially so the signer's nonce
// stream stays bounded; encoding within the batch runs in parallel
// since it is pure computation.
//
// On a mid-batch submission failure the attestations issued by earlier
// chunks are returned alongside the error.
func (s *Service) CreateBatch(ctx context.Context, requests []BatchRequest) ([]*Attestation, error) {
	ctx, span := tracer.Start(ctx, "attestation.CreateBatch", trace.WithAttributes(
		attribute.Int("items", len(requests)),
	))
	defer span.End()

	if len(requests) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "batch is empty")
	}
	batchItems.Observe(float64(len(requests)))

	prepared, err := s.prepareAll(ctx, requests)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.reserveBatch(ctx, requests); err != nil {
		span.RecordError(err)
		return nil, err
	}

	issued := make([]*Attestation, 0, len(requests))
	for offset := 0; offset < len(prepared); offset += s.settings.BatchSize {
		end := min(offset+s.settings.BatchSize, len(prepared))
		chunk := prepared[offset:end]

		records, err := s.submitChunk(ctx, chunk)
		issued = append(issued, records...)
		if err != nil {
			span.RecordError(err)
			return issued, dErrors.Wrap(err, dErrors.CodeOf(err), "batch chunk failed").
				WithDetails("chunk_start", offset, "issued", len(issued))
		}
	}

	s.emit(ctx, audit.Event{
		Action:  audit.ActionBatchIssued,
		Outcome: "confirmed",
		Details: map[string]string{"items": strconv.Itoa(len(issued))},
	})
	s.logger.InfoContext(ctx, "batch issued", "items", len(issued))
	return issued, nil
}

// reserveBatch takes every rate slot the batch needs before anything is
// submitted. Requests are aggregated per recipient and each recipient's
// full count is reserved atomically; when any recipient is denied, the
// slots already granted to earlier recipients are released so a
// rejected batch consumes no quota.
func (s *Service) reserveBatch(ctx context.Context, requests []BatchRequest) error {
	counts := make(map[string]int, len(requests))
	order := make([]string, 0, len(requests))
	for _, request := range requests {
		recipient := request.Recipient.String()
		if counts[recipient] == 0 {
			order = append(order, recipient)
		}
		counts[recipient]++
	}

	for i, recipient := range order {
		if err := s.limiter.CheckAndReserveN(ctx, recipient, counts[recipient]); err != nil {
			for _, granted := range order[:i] {
				if relErr := s.limiter.Release(ctx, granted, counts[granted]); relErr != nil {
					s.logger.WarnContext(ctx, "failed to release batch reservation",
						"recipient", granted,
						"slots", counts[granted],
						"error", relErr,
					)
				}
			}
			s.emit(ctx, audit.Event{
				Action:    audit.ActionRateLimitExceeded,
				Recipient: recipient,
			})
			return dErrors.Wrap(err, dErrors.CodeRateLimited, "batch rejected by rate limiter").
				WithDetails("recipient", recipient, "requested", counts[recipient])
		}
	}
	return nil
}

// prepareAll validates and encodes every request before any side
// effect. Index in, index out.
func (s *Service) prepareAll(ctx context.Context, requests []BatchRequest) ([]*preparedItem, error) {
	prepared := make([]*preparedItem, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for i, request := range requests {
		g.Go(func() error {
			item, err := s.prepare(gctx, request.Recipient, request.Result, request.Options)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeOf(err), "batch item rejected").
					WithDetails("index", i, "recipient", request.Recipient.String())
			}
			prepared[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, item := range prepared[1:] {
		if item.schemaUID != prepared[0].schemaUID {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "batch items must share one schema")
		}
	}
	return prepared, nil
}

// submitChunk sends one multi-item intent and demultiplexes the
// receipt's emitted identifiers back to per-item records by position.
// The registry emits one event per item in submission order; that
// ordering is what ties uid i to item i.
func (s *Service) submitChunk(ctx context.Context, chunk []*preparedItem) ([]*Attestation, error) {
	now := requestcontext.Now(ctx)

	records := make([]*Attestation, len(chunk))
	items := make([]ledger.Item, len(chunk))
	for i, prep := range chunk {
		records[i] = s.newRecord(prep, now)
		items[i] = prep.item
		if err := s.store.Insert(ctx, records[i]); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist pending attestation")
		}
	}

	receipt, err := s.ledger.Submit(ctx, ledger.Intent{
		Kind:      ledger.KindAttest,
		SchemaUID: chunk[0].schemaUID,
		Items:     items,
	})
	if err != nil {
		for _, record := range records {
			s.markFailed(ctx, record, err)
		}
		return nil, err
	}

	uids, err := s.ledger.ExtractEmittedIDs(receipt, ledger.EventAttested)
	if err != nil {
		for _, record := range records {
			s.markFailed(ctx, record, err)
		}
		return nil, err
	}
	if len(uids) != len(chunk) {
		err := dErrors.New(dErrors.CodeCreation, "emitted identifier count does not match submitted items").
			WithDetails("expected", len(chunk), "got", len(uids))
		for _, record := range records {
			s.markFailed(ctx, record, err)
		}
		return nil, err
	}

	for i, record := range records {
		s.confirm(ctx, record, receipt, uids[i])
		s.mirror(ctx, record)
	}
	return records, nil
}
