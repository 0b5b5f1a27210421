//go:build integration

package attestation_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritas/internal/attestation"
	"veritas/internal/codec"
	id "veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *attestation.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.postgres.Exec(s.T(), attestation.Schema)
	s.store = attestation.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.postgres.Exec(s.T(), `TRUNCATE attestations`)
}

func makeRecord(b string) *attestation.Attestation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	expires := now.Add(24 * time.Hour)
	return &attestation.Attestation{
		ID:        id.NewAttestationID(),
		UID:       id.AttestationUID("0x" + strings.Repeat(b, 32)),
		SchemaUID: id.SchemaUID("0x" + strings.Repeat("11", 32)),
		Attester:  id.Address("0x" + strings.Repeat("22", 20)),
		Recipient: id.Address("0x" + strings.Repeat(b, 20)),
		Data: &codec.AttestationData{
			Provider:    "acme-kyc",
			SessionID:   "sess-1",
			Status:      codec.StatusVerified,
			VerifiedAt:  uint64(now.Unix()),
			Confidence:  92,
			SubjectHash: "0x" + strings.Repeat("33", 32),
			RiskLevel:   codec.RiskLow,
			RiskScore:   8,
		},
		Encoded:     []byte{0x85, 0x01, 0x02},
		TxHash:      "0x" + strings.Repeat("44", 32),
		BlockNumber: 7,
		BlockTime:   now,
		ChainID:     31337,
		Status:      attestation.StatusConfirmed,
		ExpiresAt:   &expires,
		GasUsed:     90_000,
		GasPrice:    25_000_000_000,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PostgresStoreSuite) TestInsertAndFindRoundTrip() {
	ctx := context.Background()
	record := makeRecord("aa")
	s.Require().NoError(s.store.Insert(ctx, record))

	got, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, got.ID)
	s.Equal(record.UID, got.UID)
	s.Equal(record.SchemaUID, got.SchemaUID)
	s.Equal(record.Recipient, got.Recipient)
	s.Equal(record.Status, got.Status)
	s.Equal(record.Encoded, got.Encoded)
	s.Equal(record.GasUsed, got.GasUsed)
	s.Require().NotNil(got.Data)
	s.Equal(record.Data.SubjectHash, got.Data.SubjectHash)
	s.Equal(record.Data.RiskLevel, got.Data.RiskLevel)
	s.Require().NotNil(got.ExpiresAt)
	s.WithinDuration(*record.ExpiresAt, *got.ExpiresAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestFindByUID() {
	ctx := context.Background()
	record := makeRecord("bb")
	s.Require().NoError(s.store.Insert(ctx, record))

	got, err := s.store.FindByUID(ctx, record.UID)
	s.Require().NoError(err)
	s.Equal(record.ID, got.ID)
}

func (s *PostgresStoreSuite) TestUpdateLifecycle() {
	ctx := context.Background()
	record := makeRecord("cc")
	record.Status = attestation.StatusPending
	record.UID = ""
	record.TxHash = ""
	s.Require().NoError(s.store.Insert(ctx, record))

	now := time.Now().UTC().Truncate(time.Microsecond)
	record.UID = id.AttestationUID("0x" + strings.Repeat("dd", 32))
	record.TxHash = "0x" + strings.Repeat("ee", 32)
	record.Status = attestation.StatusConfirmed
	record.UpdatedAt = now
	s.Require().NoError(s.store.Update(ctx, record))

	got, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(attestation.StatusConfirmed, got.Status)
	s.Equal(record.UID, got.UID)
}

func (s *PostgresStoreSuite) TestUpdateMissingRecord() {
	record := makeRecord("dd")
	err := s.store.Update(context.Background(), record)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(context.Background(), id.NewAttestationID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByRecipientOrdered() {
	ctx := context.Background()
	recipient := id.Address("0x" + strings.Repeat("ff", 20))

	for i := 0; i < 3; i++ {
		record := makeRecord("ee")
		record.ID = id.NewAttestationID()
		record.UID = id.AttestationUID(fmt.Sprintf("0x%s%02d", strings.Repeat("ee", 31), i))
		record.Recipient = recipient
		record.CreatedAt = record.CreatedAt.Add(time.Duration(i) * time.Second)
		s.Require().NoError(s.store.Insert(ctx, record))
	}

	records, err := s.store.ListByRecipient(ctx, recipient)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	for i := 1; i < len(records); i++ {
		s.True(records[i].CreatedAt.After(records[i-1].CreatedAt))
	}
}
