// Package kafka consumes completed scan events and builds the transports
// used by the lifecycle producer.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/complyhq/issues-backend/v2/config"
	"github.com/complyhq/issues-backend/v2/events/modules/scans"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// Dialer builds a dialer for cfg. SASL/PLAIN over TLS is used only when
// credentials are provided; local brokers get a plain dialer.
func Dialer(cfg config.KafkaConfig) *kafka.Dialer {
	if cfg.APIKey != "" && cfg.APISecret != "" {
		return &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			SASLMechanism: plain.Mechanism{
				Username: cfg.APIKey,
				Password: cfg.APISecret,
			},
			TLS: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
}

// Transport builds the writer transport matching Dialer.
func Transport(cfg config.KafkaConfig) kafka.RoundTripper {
	if cfg.APIKey != "" && cfg.APISecret != "" {
		return &kafka.Transport{
			SASL: plain.Mechanism{
				Username: cfg.APIKey,
				Password: cfg.APISecret,
			},
			TLS:         &tls.Config{MinVersion: tls.VersionTLS12},
			DialTimeout: 10 * time.Second,
		}
	}
	return nil
}

// MessageReader is the subset of *kafka.Reader the processor needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RunEventProcessor waits for the brokers, then consumes scan events in the
// background until ctx is cancelled.
func RunEventProcessor(ctx context.Context, cfg config.KafkaConfig, service scans.ScanService, logger *zap.Logger) error {
	dialer := Dialer(cfg)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute

	err := backoff.RetryNotify(func() error {
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("Retrying connection to Kafka", zap.Strings("brokers", cfg.Brokers), zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.ScanTopic,
		MaxBytes: 10e6,
		Dialer:   dialer,
	})

	go func() {
		defer reader.Close()
		logger.Info("Kafka event processor started", zap.String("topic", cfg.ScanTopic), zap.String("group_id", cfg.GroupID))
		Consume(ctx, reader, service, logger)
	}()

	return nil
}

// newRedeliveryBackOff paces re-handling of an event whose processing failed.
var newRedeliveryBackOff = func() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	return bo
}

// Consume processes messages until ctx is done. Malformed events are logged
// and committed so they do not block the partition. A service failure keeps
// the same message at the head: it is handled again with backoff until it
// succeeds, and is never committed while it fails.
func Consume(ctx context.Context, reader MessageReader, service scans.ScanService, logger *zap.Logger) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Failed to fetch Kafka message", zap.Error(err))
			continue
		}

		var summary model.RunSummary
		op := func() error {
			var err error
			summary, err = scans.HandleScanCompleted(ctx, msg.Value, service, logger)
			if err == nil {
				return nil
			}
			if errors.Is(err, model.ErrInvalidInput) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		err = backoff.RetryNotify(op, backoff.WithContext(newRedeliveryBackOff(), ctx), func(err error, wait time.Duration) {
			logger.Error("Failed to process scan event, retrying",
				zap.Int64("offset", msg.Offset),
				zap.Int("failed", summary.Failed),
				zap.Duration("wait", wait),
				zap.Error(err))
		})

		switch {
		case err == nil:
			logger.Info("Scan reconciled",
				zap.String("document_id", summary.DocumentID),
				zap.String("check_id", summary.CheckID),
				zap.Int("created", summary.Created),
				zap.Int("updated", summary.Updated),
				zap.Int("reopened", summary.Reopened),
				zap.Int("failed", summary.Failed))
		case errors.Is(err, model.ErrInvalidInput):
			logger.Error("Discarding invalid scan event", zap.Int64("offset", msg.Offset), zap.Error(err))
		default:
			logger.Warn("Stopping with scan event uncommitted", zap.Int64("offset", msg.Offset), zap.Error(err))
			return
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn("Failed to commit Kafka message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}
