// Package publish moves engine output to downstream systems.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/idhash"
)

// Kafka header names carried by every shortlist message.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
	HeaderRunID     = "run_id"

	EventShortlisted = "shortlisted"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures NewKafkaPublisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	RunID   string
}

// KafkaPublisher announces shortlisted candidates, one message per mint,
// keyed by mint so a mint's announcements stay on one partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	runID  string
}

// NewKafkaPublisher creates a publisher with a hash-balanced writer.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewKafkaPublisherWithWriter(writer, cfg.Topic, cfg.RunID), nil
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, topic, runID string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, runID: runID}
}

// Topic returns the destination topic.
func (p *KafkaPublisher) Topic() string { return p.topic }

// PublishShortlisted writes one message per entry in a single call.
func (p *KafkaPublisher) PublishShortlisted(ctx context.Context, entries []domain.ShortlistEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal shortlist entry: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Mint),
			Value: value,
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(EventShortlisted)},
				{Key: HeaderEventID, Value: []byte(idhash.ComputeShortlistEventID(p.runID, e.Mint, e.Rank, e.PublishedAt))},
				{Key: HeaderRunID, Value: []byte(p.runID)},
				{Key: "rank", Value: []byte(strconv.Itoa(e.Rank))},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
