package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"edgar-sgml-ingest-system/internal/models"
)

// Producer publishes filing pipeline records and exposes a Close hook.
type Producer interface {
	// PublishRaw publishes an unparsed filing synchronously and returns when
	// the broker acks it.
	PublishRaw(ctx context.Context, filing *models.RawFiling) error
	// PublishParsed enqueues a parsed filing for async publishing; returns
	// once queued or ctx cancels.
	PublishParsed(ctx context.Context, filing *models.ParsedFiling) error
	// PublishError reports a pipeline failure to the error topic.
	PublishError(ctx context.Context, perr *models.ProcessingError) error
	// Close flushes and closes underlying producers.
	Close() error
}

type producer struct {
	syncProducer  sarama.SyncProducer
	asyncProducer sarama.AsyncProducer
	logger        *logrus.Logger
	config        ProducerConfig
}

// ProducerConfig holds client-side settings for throughput/reliability
// plus the pipeline topic names.
type ProducerConfig struct {
	Brokers       []string
	RawTopic      string
	ParsedTopic   string
	ErrorTopic    string
	RetryAttempts int
	FlushTimeout  time.Duration
	BatchSize     int
}

// NewProducer constructs both sync and async Sarama producers with safe defaults.
func NewProducer(cfg ProducerConfig, logger *logrus.Logger) (Producer, error) {
	sc := sarama.NewConfig()

	// Reliability / idempotence
	sc.Producer.RequiredAcks = sarama.WaitForAll // acks=all is required for idempotence
	sc.Producer.Retry.Max = cfg.RetryAttempts    // >0 required for idempotence
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1 // keeps in-flight per connection to 1 for strict ordering

	// Throughput / batching
	sc.Producer.Flush.Frequency = cfg.FlushTimeout
	sc.Producer.Flush.Messages = cfg.BatchSize
	sc.Producer.Compression = sarama.CompressionSnappy

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	ap, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("failed to create async producer: %w", err)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &producer{
		syncProducer:  sp,
		asyncProducer: ap,
		logger:        logger,
		config:        cfg,
	}

	// Drain async error channel so it doesn't block.
	go p.handleAsyncErrors()

	return p, nil
}

// PublishRaw sends the raw filing synchronously, keyed by filing ID, and
// logs the assigned partition/offset.
func (p *producer) PublishRaw(ctx context.Context, filing *models.RawFiling) error {
	if err := filing.Validate(); err != nil {
		return fmt.Errorf("invalid raw filing: %w", err)
	}
	msg, err := createMessage(p.config.RawTopic, filing.ID, filing)
	if err != nil {
		return err
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic": p.config.RawTopic, "filing_id": filing.ID,
		}).Error("failed to publish raw filing")
		return fmt.Errorf("failed to publish raw filing: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic": p.config.RawTopic, "partition": partition, "offset": offset,
		"filing_id": filing.ID,
	}).Debug("raw filing published")
	return nil
}

// PublishParsed enqueues the parsed filing, keyed by accession number so
// reprocessed filings land on the same partition.
func (p *producer) PublishParsed(ctx context.Context, filing *models.ParsedFiling) error {
	key := filing.AccessionNumber
	if key == "" {
		key = filing.ID
	}
	msg, err := createMessage(p.config.ParsedTopic, key, filing)
	if err != nil {
		return err
	}
	select {
	case p.asyncProducer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishError reports a processing failure synchronously so it is never
// lost on shutdown.
func (p *producer) PublishError(ctx context.Context, perr *models.ProcessingError) error {
	msg, err := createMessage(p.config.ErrorTopic, perr.FilingID, perr)
	if err != nil {
		return err
	}
	if _, _, err := p.syncProducer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish processing error: %w", err)
	}
	return nil
}

// createMessage marshals value and builds a ProducerMessage.
func createMessage(topic, key string, value interface{}) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
	}, nil
}

// handleAsyncErrors continuously drains and logs async send errors.
func (p *producer) handleAsyncErrors() {
	for err := range p.asyncProducer.Errors() {
		p.logger.WithError(err.Err).WithFields(logrus.Fields{
			"topic": err.Msg.Topic, "partition": err.Msg.Partition,
		}).Error("async producer error")
	}
}

// Close flushes and closes both sync and async producers, returning a combined error if any.
func (p *producer) Close() error {
	var errs []error
	if err := p.syncProducer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.asyncProducer.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing producer: %v", errs)
	}
	return nil
}
