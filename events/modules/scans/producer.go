package scans

import (
	"context"
	"encoding/json"
	"time"

	"github.com/complyhq/issues-backend/v2/model"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the producers need.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LifecycleProducer publishes issue status changes to Kafka. Messages are
// keyed by issue id so one issue's events stay ordered within a partition.
type LifecycleProducer struct {
	Writer MessageWriter
}

// NewLifecycleProducer initializes a Kafka writer for lifecycle events. A nil
// transport uses the kafka-go default.
func NewLifecycleProducer(brokers []string, topic string, transport kafka.RoundTripper) *LifecycleProducer {
	return &LifecycleProducer{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		},
	}
}

// Publish sends one lifecycle event.
func (p *LifecycleProducer) Publish(ctx context.Context, change model.LifecycleEvent) error {
	event := IssueLifecycleEvent{
		EventType:     EventTypeIssueLifecycle,
		EventID:       change.EventID,
		EventTime:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Change:        change,
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.IssueID),
		Value: payload,
	})
}

// Close cleans up the Kafka writer
func (p *LifecycleProducer) Close() error {
	return p.Writer.Close()
}

// ScanProducer publishes scan completed events. The offline reconcile
// command can use it to replay a run through the service.
type ScanProducer struct {
	Writer MessageWriter
}

// NewScanProducer initializes a Kafka writer for scan events.
func NewScanProducer(brokers []string, topic string, transport kafka.RoundTripper) *ScanProducer {
	return &ScanProducer{
		Writer: &kafka.Writer{
			Addr:      kafka.TCP(brokers...),
			Topic:     topic,
			Balancer:  &kafka.LeastBytes{},
			Transport: transport,
		},
	}
}

// PublishScanCompleted sends a completed scan to the Kafka topic.
func (p *ScanProducer) PublishScanCompleted(ctx context.Context, scan model.ScanResults) error {
	event := ScanCompletedEvent{
		EventType:     EventTypeScanCompleted,
		EventID:       uuid.NewString(),
		EventTime:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Scan:          scan,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(scan.DocumentID),
		Value: payload,
	})
}

// Close cleans up the Kafka writer
func (p *ScanProducer) Close() error {
	return p.Writer.Close()
}
