package attestation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritas/internal/audit"
	"veritas/internal/blob"
	"veritas/internal/codec"
	"veritas/internal/ledger"
	"veritas/internal/ratelimit"
	"veritas/internal/schema"
	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/requestcontext"
)

type EngineSuite struct {
	suite.Suite
	client     *ledger.MemoryClient
	gateway    *ledger.Gateway
	store      *MemoryStore
	auditStore *audit.MemoryStore
	blobs      *blob.MemoryUploader
	engine     *Service
	schemaUID  id.SchemaUID
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = s.buildEngine(Settings{
		DefaultExpirationHours: 24,
		RevocationEnabled:      true,
		BatchSize:              10,
		CacheTTL:               time.Minute,
	})
}

// buildEngine wires a full engine against the in-process registry,
// registering the default schema first. Settings.DefaultSchemaUID is
// filled in from that registration.
func (s *EngineSuite) buildEngine(settings Settings) *Service {
	var err error
	s.client = ledger.NewMemoryClient()
	signer, err := ledger.GenerateCoseSigner()
	s.Require().NoError(err)
	s.gateway, err = ledger.New(s.client, signer,
		ledger.WithChainID(31337),
		ledger.WithRetry(3, 0),
	)
	s.Require().NoError(err)

	schemas, err := schema.New(s.gateway, schema.WithCacheTTL(time.Minute))
	s.Require().NoError(err)
	s.schemaUID, err = schemas.Register(context.Background(),
		"kyc-attestation", "identity verification outcome",
		codec.DefaultSchemaFields, "1.0.0", true)
	s.Require().NoError(err)
	settings.DefaultSchemaUID = s.schemaUID

	transformer, err := codec.NewTransformer("engine-test-salt")
	s.Require().NoError(err)
	enc, err := codec.NewCodec()
	s.Require().NoError(err)

	limiter, err := ratelimit.New(ratelimit.NewInMemoryBucketStore(),
		ratelimit.Limits{MaxPerHour: 5, MaxPerDay: 20})
	s.Require().NoError(err)

	s.store = NewMemoryStore()
	s.auditStore = audit.NewMemoryStore()
	s.blobs = blob.NewMemoryUploader()

	engine, err := New(s.gateway, schemas, transformer, enc, limiter, s.store, settings,
		WithAuditPublisher(audit.NewPublisher(s.auditStore)),
		WithBlobUploader(s.blobs),
	)
	s.Require().NoError(err)
	return engine
}

func (s *EngineSuite) recipient(b string) id.Address {
	addr, err := id.ParseAddress("0x" + strings.Repeat(b, 20))
	s.Require().NoError(err)
	return addr
}

func completedResult(confidence int) *codec.VerificationResult {
	return &codec.VerificationResult{
		Provider:   "acme-kyc",
		SessionID:  "sess-42",
		Status:     codec.ResultCompleted,
		Confidence: confidence,
		Checks: codec.CheckResults{
			Document:  codec.CheckPassed,
			Biometric: codec.CheckPassed,
			Liveness:  codec.CheckPassed,
			Address:   codec.CheckPassed,
			Sanctions: codec.CheckPassed,
			PEP:       codec.CheckPassed,
			Age:       codec.CheckPassed,
		},
		CountryCode:  "DE",
		DocumentType: "passport",
		CreatedAt:    time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Create
// -----------------------------------------------------------------------------

func (s *EngineSuite) TestCreate_HappyPath() {
	record, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)

	s.Equal(StatusConfirmed, record.Status)
	s.NotEmpty(record.UID)
	s.NotEmpty(record.TxHash)
	s.Equal(s.schemaUID, record.SchemaUID)
	s.Equal(s.gateway.Attester(), record.Attester)
	s.Equal(codec.RiskLow, record.Data.RiskLevel)
	s.Equal(uint8(92), record.Data.Confidence)
	s.NotContains(record.Data.SubjectHash, strings.Repeat("a", 40), "raw recipient must never appear")

	stored, err := s.store.FindByID(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(StatusConfirmed, stored.Status)
	s.Equal(record.UID, stored.UID)

	created, err := s.auditStore.ListByAction(context.Background(), audit.ActionAttestationCreated)
	s.Require().NoError(err)
	s.Len(created, 1)
	s.Equal(record.ID.String(), created[0].AttestationID)
}

func (s *EngineSuite) TestCreate_RejectsNonCompletedResult() {
	result := completedResult(92)
	result.Status = codec.ResultFailed

	_, err := s.engine.Create(context.Background(), s.recipient("aa"), result, CreateOptions{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Equal(1, s.client.TxCount(), "only the schema registration transaction")
}

func (s *EngineSuite) TestCreate_RejectsNilResult() {
	_, err := s.engine.Create(context.Background(), s.recipient("aa"), nil, CreateOptions{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *EngineSuite) TestCreate_RateLimited() {
	ctx := context.Background()
	recipient := s.recipient("aa")

	for i := 0; i < 5; i++ {
		result := completedResult(92)
		result.SessionID = "sess-" + strings.Repeat("x", i+1)
		_, err := s.engine.Create(ctx, recipient, result, CreateOptions{})
		s.Require().NoError(err)
	}

	_, err := s.engine.Create(ctx, recipient, completedResult(92), CreateOptions{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	denied, err := s.auditStore.ListByAction(ctx, audit.ActionRateLimitExceeded)
	s.Require().NoError(err)
	s.Len(denied, 1)

	// The denied request never reached the ledger.
	s.Equal(6, s.client.TxCount(), "schema registration plus five issuances")

	// A different recipient is unaffected.
	_, err = s.engine.Create(ctx, s.recipient("bb"), completedResult(92), CreateOptions{})
	s.NoError(err)
}

func (s *EngineSuite) TestCreate_ExpirationDefaultsAndOverrides() {
	ctx := requestcontext.WithTime(context.Background(),
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	s.Run("default applied", func() {
		record, err := s.engine.Create(ctx, s.recipient("aa"), completedResult(92), CreateOptions{})
		s.Require().NoError(err)
		s.Require().NotNil(record.ExpiresAt)
		s.Equal(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC), record.ExpiresAt.UTC())
	})

	s.Run("override applied", func() {
		record, err := s.engine.Create(ctx, s.recipient("bb"), completedResult(92),
			CreateOptions{ExpirationHours: 48})
		s.Require().NoError(err)
		s.Require().NotNil(record.ExpiresAt)
		s.Equal(time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC), record.ExpiresAt.UTC())
	})

	s.Run("negative means never", func() {
		record, err := s.engine.Create(ctx, s.recipient("cc"), completedResult(92),
			CreateOptions{ExpirationHours: -1})
		s.Require().NoError(err)
		s.Nil(record.ExpiresAt)
	})
}

func (s *EngineSuite) TestCreate_SubmitFailureMarksRecordFailed() {
	s.client.SendErrs = []error{ledger.ErrNetwork, ledger.ErrNetwork, ledger.ErrNetwork}

	_, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMaxRetries))

	records, listErr := s.store.ListByRecipient(context.Background(), s.recipient("aa"))
	s.Require().NoError(listErr)
	s.Require().Len(records, 1)
	s.Equal(StatusFailed, records[0].Status)
	s.Empty(records[0].UID)

	exhausted, auditErr := s.auditStore.ListByAction(context.Background(), audit.ActionSubmissionExhausted)
	s.Require().NoError(auditErr)
	s.Require().Len(exhausted, 1)
	s.Equal(records[0].ID.String(), exhausted[0].AttestationID)
}

func (s *EngineSuite) TestCreate_MirrorsToBlobStorage() {
	record, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)

	payload, err := s.blobs.Fetch(context.Background(),
		blob.Ref{Key: "attestations/" + record.ID.String() + ".json"})
	s.Require().NoError(err)
	s.Contains(string(payload), record.UID.String())
	s.Contains(string(payload), record.Recipient.String())
}

// -----------------------------------------------------------------------------
// Get
// -----------------------------------------------------------------------------

func (s *EngineSuite) TestGet_ReturnsIssuedRecord() {
	record, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)

	got, err := s.engine.Get(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, got.ID)
	s.Equal(record.UID, got.UID)
}

func (s *EngineSuite) TestGet_UnknownID() {
	_, err := s.engine.Get(context.Background(), id.NewAttestationID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestGet_ReflectsExpiryAfterCacheMiss() {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	record, err := s.engine.Create(ctx, s.recipient("aa"), completedResult(92),
		CreateOptions{ExpirationHours: 1})
	s.Require().NoError(err)

	// Past both the cache TTL and the expiration.
	later := requestcontext.WithTime(context.Background(), base.Add(2*time.Hour))
	got, err := s.engine.Get(later, record.ID)
	s.Require().NoError(err)
	s.Equal(StatusExpired, got.Status)
}

// -----------------------------------------------------------------------------
// Verify
// -----------------------------------------------------------------------------

func (s *EngineSuite) TestVerify_ValidAttestation() {
	record, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)

	verdict, err := s.engine.Verify(context.Background(), record.UID)
	s.Require().NoError(err)
	s.True(verdict.Valid)
	s.Empty(verdict.Predicates.Failing())
	s.Require().NotNil(verdict.Data)
	s.Equal(record.Data.SubjectHash, verdict.Data.SubjectHash)
	s.Equal(codec.RiskLow, verdict.Data.RiskLevel)
	s.Require().NotNil(verdict.Record)
	s.Equal(s.recipient("aa"), verdict.Record.Recipient)
}

func (s *EngineSuite) TestVerify_MissingIsNegativeVerdictNotError() {
	uid := id.AttestationUID("0x" + strings.Repeat("77", 32))

	verdict, err := s.engine.Verify(context.Background(), uid)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal([]string{"exists"}, verdict.Predicates.Failing())
	s.Nil(verdict.Data)
}

func (s *EngineSuite) TestVerify_ExpiredFlipsOnlyNotExpired() {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	record, err := s.engine.Create(ctx, s.recipient("aa"), completedResult(92),
		CreateOptions{ExpirationHours: 1})
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), base.Add(2*time.Hour))
	verdict, err := s.engine.Verify(later, record.UID)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal([]string{"notExpired"}, verdict.Predicates.Failing())
}

func (s *EngineSuite) TestVerify_RevokedFlipsOnlyNotRevoked() {
	record, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)
	_, err = s.engine.Revoke(context.Background(), record.ID, "kyc withdrawn")
	s.Require().NoError(err)

	verdict, err := s.engine.Verify(context.Background(), record.UID)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal([]string{"notRevoked"}, verdict.Predicates.Failing())
}

func (s *EngineSuite) TestVerify_SchemaMismatch() {
	ctx := context.Background()
	schemas, err := schema.New(s.gateway)
	s.Require().NoError(err)
	otherUID, err := schemas.Register(ctx, "other", "", codec.DefaultSchemaFields, "1.0.0", true)
	s.Require().NoError(err)

	record, err := s.engine.Create(ctx, s.recipient("aa"), completedResult(92),
		CreateOptions{SchemaUID: otherUID})
	s.Require().NoError(err)

	verdict, err := s.engine.Verify(ctx, record.UID)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal([]string{"schemaMatches"}, verdict.Predicates.Failing())
}

// -----------------------------------------------------------------------------
// Revoke
// -----------------------------------------------------------------------------

func (s *EngineSuite) TestRevoke_UpdatesLocalRecord() {
	record, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)

	revoked, err := s.engine.Revoke(context.Background(), record.ID, "account closed")
	s.Require().NoError(err)
	s.True(revoked.Revoked)
	s.Equal(StatusRevoked, revoked.Status)
	s.Equal("account closed", revoked.RevokedReason)
	s.NotNil(revoked.RevokedAt)

	// Subsequent reads see ledger truth, not a stale cache entry.
	got, err := s.engine.Get(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(StatusRevoked, got.Status)

	events, err := s.auditStore.ListByAction(context.Background(), audit.ActionAttestationRevoked)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *EngineSuite) TestRevoke_DisabledByConfiguration() {
	engine := s.buildEngine(Settings{RevocationEnabled: false, BatchSize: 10})

	record, err := engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)

	_, err = engine.Revoke(context.Background(), record.ID, "nope")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *EngineSuite) TestRevoke_AlreadyRevoked() {
	record, err := s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.Require().NoError(err)
	_, err = s.engine.Revoke(context.Background(), record.ID, "first")
	s.Require().NoError(err)

	_, err = s.engine.Revoke(context.Background(), record.ID, "second")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *EngineSuite) TestRevoke_UnknownID() {
	_, err := s.engine.Revoke(context.Background(), id.NewAttestationID(), "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// -----------------------------------------------------------------------------
// EstimateCost
// -----------------------------------------------------------------------------

func (s *EngineSuite) TestEstimateCost_QuotesWithoutConsumingRateSlot() {
	ctx := context.Background()
	recipient := s.recipient("aa")

	for i := 0; i < 3; i++ {
		estimate, err := s.engine.EstimateCost(ctx, recipient, completedResult(92))
		s.Require().NoError(err)
		s.Greater(estimate.TotalCost, uint64(0))
	}

	// All five hourly slots are still available.
	for i := 0; i < 5; i++ {
		result := completedResult(92)
		result.SessionID = "sess-" + strings.Repeat("y", i+1)
		_, err := s.engine.Create(ctx, recipient, result, CreateOptions{})
		s.Require().NoError(err)
	}
}

func (s *EngineSuite) TestEstimateCost_RejectsIncompleteResult() {
	result := completedResult(50)
	result.Status = codec.ResultPending

	_, err := s.engine.EstimateCost(context.Background(), s.recipient("aa"), result)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
