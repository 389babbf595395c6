package xrayclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaShipper publishes each event in a batch as one Kafka message to a
// configured topic, keyed by the event's run_id so a consumer that
// partitions by key sees a single run's events in order. This is an
// alternate transport sink for deployments that front ingestion with a
// broker instead of (or in addition to) the HTTP endpoint; it implements
// the same Shipper interface as HTTPShipper, so a Transport can be pointed
// at either without any other code changing.
type KafkaShipper struct {
	writer *kafka.Writer
}

// NewKafkaShipper builds a shipper that publishes to topic via the given
// brokers. The caller owns the returned shipper's lifecycle and must call
// Close when done.
func NewKafkaShipper(brokers []string, topic string) *KafkaShipper {
	return &KafkaShipper{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 0,
		},
	}
}

// Ship publishes events to the configured topic.
func (s *KafkaShipper) Ship(ctx context.Context, events []map[string]any) error {
	messages := make([]kafka.Message, 0, len(events))

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("xrayclient: marshal event for kafka: %w", err)
		}

		key := ""
		if runID, ok := event["run_id"].(string); ok {
			key = runID
		} else if eventType := event["event_type"]; eventType == "run_start" || eventType == "run_end" {
			// Run events carry the run's ID under "id" rather than "run_id".
			if id, ok := event["id"].(string); ok {
				key = id
			}
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(key),
			Value: payload,
		})
	}

	if len(messages) == 0 {
		return nil
	}

	if err := s.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("xrayclient: write kafka messages: %w", err)
	}

	return nil
}

// Close releases the underlying Kafka writer's connections.
func (s *KafkaShipper) Close() error {
	return s.writer.Close()
}
