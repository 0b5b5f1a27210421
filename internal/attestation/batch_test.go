package attestation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritas/internal/codec"
	"veritas/internal/schema"
	dErrors "veritas/pkg/domain-errors"
)

type BatchSuite struct {
	EngineSuite
}

func TestBatchSuite(t *testing.T) {
	suite.Run(t, new(BatchSuite))
}

func (s *BatchSuite) requests(n int) []BatchRequest {
	out := make([]BatchRequest, n)
	for i := range out {
		result := completedResult(92)
		result.SessionID = fmt.Sprintf("sess-%d", i)
		out[i] = BatchRequest{
			Recipient: s.recipient(fmt.Sprintf("%02x", 0xa0+i)),
			Result:    result,
		}
	}
	return out
}

func (s *BatchSuite) TestCreateBatch_PreservesInputOrder() {
	requests := s.requests(5)

	issued, err := s.engine.CreateBatch(context.Background(), requests)
	s.Require().NoError(err)
	s.Require().Len(issued, 5)

	seen := make(map[string]bool)
	for i, record := range issued {
		s.Equal(requests[i].Recipient, record.Recipient, "result %d must align with input %d", i, i)
		s.Equal(StatusConfirmed, record.Status)
		s.NotEmpty(record.UID)
		s.False(seen[record.UID.String()], "identifiers must be unique")
		seen[record.UID.String()] = true
	}
}

func (s *BatchSuite) TestCreateBatch_ChunksAtBatchSize() {
	engine := s.buildEngine(Settings{BatchSize: 2, CacheTTL: time.Minute})

	issued, err := engine.CreateBatch(context.Background(), s.requests(5))
	s.Require().NoError(err)
	s.Len(issued, 5)

	// Schema registration plus ceil(5/2) = 3 chunk submissions.
	s.Equal(4, s.client.TxCount())
}

func (s *BatchSuite) TestCreateBatch_ValidationFailsBeforeAnyMutation() {
	requests := s.requests(3)
	requests[1].Result.Status = codec.ResultFailed

	_, err := s.engine.CreateBatch(context.Background(), requests)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	// No submission happened and nothing was persisted.
	s.Equal(1, s.client.TxCount(), "only the schema registration transaction")
	for _, request := range requests {
		records, listErr := s.store.ListByRecipient(context.Background(), request.Recipient)
		s.Require().NoError(listErr)
		s.Empty(records)
	}
}

func (s *BatchSuite) TestCreateBatch_RejectsEmptyBatch() {
	_, err := s.engine.CreateBatch(context.Background(), nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *BatchSuite) TestCreateBatch_RejectsMixedSchemas() {
	ctx := context.Background()
	schemas, err := schema.New(s.gateway)
	s.Require().NoError(err)
	otherUID, err := schemas.Register(ctx, "other", "", codec.DefaultSchemaFields, "1.0.0", true)
	s.Require().NoError(err)

	requests := s.requests(2)
	requests[1].Options.SchemaUID = otherUID

	_, err = s.engine.CreateBatch(ctx, requests)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *BatchSuite) TestCreateBatch_RateLimitDeniesWholeBatch() {
	// Six requests for one recipient exceed the hourly limit of five.
	requests := s.requests(6)
	for i := range requests {
		requests[i].Recipient = s.recipient("aa")
	}

	_, err := s.engine.CreateBatch(context.Background(), requests)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal(1, s.client.TxCount(), "nothing submitted")
}

func (s *BatchSuite) TestCreateBatch_DeniedBatchConsumesNoQuota() {
	requests := s.requests(6)
	for i := range requests {
		requests[i].Recipient = s.recipient("aa")
	}

	_, err := s.engine.CreateBatch(context.Background(), requests)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	// The recipient issued nothing, so the full hourly allowance must
	// still be available.
	for i := 0; i < 5; i++ {
		result := completedResult(92)
		result.SessionID = fmt.Sprintf("retry-%d", i)
		_, err := s.engine.Create(context.Background(), s.recipient("aa"), result, CreateOptions{})
		s.Require().NoError(err)
	}
}

func (s *BatchSuite) TestCreateBatch_DenialReleasesEarlierRecipients() {
	// Five requests for one recipient fill its hourly window, then six
	// for another force a denial after the first reservation succeeded.
	requests := make([]BatchRequest, 0, 11)
	for i := 0; i < 5; i++ {
		result := completedResult(92)
		result.SessionID = fmt.Sprintf("aa-%d", i)
		requests = append(requests, BatchRequest{Recipient: s.recipient("aa"), Result: result})
	}
	for i := 0; i < 6; i++ {
		result := completedResult(92)
		result.SessionID = fmt.Sprintf("bb-%d", i)
		requests = append(requests, BatchRequest{Recipient: s.recipient("bb"), Result: result})
	}

	_, err := s.engine.CreateBatch(context.Background(), requests)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal(1, s.client.TxCount(), "nothing submitted")

	// The first recipient's five slots were reserved before the denial;
	// they must have been handed back.
	_, err = s.engine.Create(context.Background(), s.recipient("aa"), completedResult(92), CreateOptions{})
	s.NoError(err)
}

func (s *BatchSuite) TestCreateBatch_SingleItem() {
	issued, err := s.engine.CreateBatch(context.Background(), s.requests(1))
	s.Require().NoError(err)
	s.Len(issued, 1)
	s.Equal(StatusConfirmed, issued[0].Status)
}
