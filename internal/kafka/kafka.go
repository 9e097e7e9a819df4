package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a kafka-go writer keyed by project id so events for one
// project land on one partition.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 250 * time.Millisecond,
		BatchSize:    1,
	}
}

// NewReader constructs a reader bound to a consumer group. Offsets are
// committed explicitly after a batch persists, so a failed batch is
// redelivered whole.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		Topic:           topic,
		GroupID:         group,
		MinBytes:        1e4,
		MaxBytes:        10e6,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: 5 * time.Second,
		MaxWait:         time.Second,
	})
}
