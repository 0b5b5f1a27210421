package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"veritas/internal/platform/kafka"
)

// KafkaSink publishes audit events to a Kafka topic as JSON. Records
// are keyed by recipient so one subject's trail stays in partition
// order.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(producer *kafka.Producer, topic string) (*KafkaSink, error) {
	if producer == nil {
		return nil, fmt.Errorf("audit: kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("audit: kafka topic is required")
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	var key []byte
	if event.Recipient != "" {
		key = []byte(event.Recipient)
	}
	return s.producer.Publish(ctx, s.topic, key, payload)
}
