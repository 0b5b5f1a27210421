//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"veritas/internal/audit"
	"veritas/internal/platform/kafka"
	"veritas/pkg/testutil/containers"
)

const auditTopic = "veritas.audit.v1"

type KafkaSinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kafka.Producer
	sink     *audit.KafkaSink
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())

	var err error
	s.producer, err = kafka.NewProducer([]string{s.redpanda.Broker})
	s.Require().NoError(err)

	s.sink, err = audit.NewKafkaSink(s.producer, auditTopic)
	s.Require().NoError(err)
}

func (s *KafkaSinkSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaSinkSuite) TestAppendLandsOnTopic() {
	ctx := context.Background()

	event := audit.Event{
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Action:    audit.ActionAttestationCreated,
		Recipient: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TxHash:    "0xdeadbeef",
		Outcome:   "confirmed",
	}
	s.Require().NoError(s.sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(auditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	last := records[len(records)-1]
	s.Equal(event.Recipient, string(last.Key))

	var got audit.Event
	s.Require().NoError(json.Unmarshal(last.Value, &got))
	s.Equal(event.Action, got.Action)
	s.Equal(event.Recipient, got.Recipient)
	s.Equal(event.TxHash, got.TxHash)
	s.Equal(event.Outcome, got.Outcome)
}

func (s *KafkaSinkSuite) TestTopicVisibleToAdmin() {
	ctx := context.Background()

	s.Require().NoError(s.sink.Append(ctx, audit.Event{
		Timestamp: time.Now(),
		Action:    audit.ActionSchemaRegistered,
	}))

	adminClient, err := kgo.NewClient(kgo.SeedBrokers(s.redpanda.Broker))
	s.Require().NoError(err)
	defer adminClient.Close()

	admin := kadm.NewClient(adminClient)
	topics, err := admin.ListTopics(ctx)
	s.Require().NoError(err)
	s.True(topics.Has(auditTopic))
}
