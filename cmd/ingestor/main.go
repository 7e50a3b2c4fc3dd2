package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"edgar-sgml-ingest-system/internal/config"
	"edgar-sgml-ingest-system/internal/ingest"
	"edgar-sgml-ingest-system/internal/kafka"
	"edgar-sgml-ingest-system/internal/models"
)

// IngestorService wires together the Kafka consumer/producer and the filing processor.
type IngestorService struct {
	config    *config.Config
	processor *ingest.Processor
	consumer  kafka.Consumer
	producer  kafka.Producer
	logger    *logrus.Logger
	metrics   *ServiceMetrics

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ServiceMetrics holds rolling counters/aggregates for observability.
type ServiceMetrics struct {
	ProcessedCount        int64            `json:"processed_count"`
	ErrorCount            int64            `json:"error_count"`
	StartTime             time.Time        `json:"start_time"`
	LastProcessedAt       time.Time        `json:"last_processed_at"`
	AverageProcessingTime float64          `json:"average_processing_time_ms"`
	TotalProcessingTime   time.Duration    `json:"total_processing_time"`
	FilingsByForm         map[string]int64 `json:"filings_by_form"`
	mu                    sync.RWMutex
}

func main() {
	var (
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		healthPort = flag.String("health-port", "9090", "Health check port")
	)
	flag.Parse()

	// Load configuration (env/config file/defaults).
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Optional override via CLI.
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Structured logging.
	logger := setupLogging(cfg)
	logger.WithFields(logrus.Fields{
		"service": "ingestor",
		"version": cfg.Service.Version,
	}).Info("Starting Filing Ingestor Service")

	// Build the service.
	service, err := NewIngestorService(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create ingestor service: %v", err)
	}

	// Root context + graceful shutdown wiring.
	ctx, cancel := context.WithCancel(context.Background())
	service.ctx = ctx
	service.cancel = cancel

	// Health endpoints.
	healthChecker := NewHealthChecker(service, logger)
	go healthChecker.StartHealthServer(ctx, *healthPort)

	// OS signals -> cancel context -> graceful stop.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received, starting graceful shutdown...")
		cancel()
	}()

	// Run until the consumer stops (ctx cancelled or fatal error).
	if err := service.Start(); err != nil {
		logger.Fatalf("Service failed: %v", err)
	}
	logger.Info("Filing Ingestor Service stopped gracefully")
}

// NewIngestorService constructs the processor, producer, and consumer.
func NewIngestorService(cfg *config.Config, logger *logrus.Logger) (*IngestorService, error) {
	processor := ingest.NewProcessor(ingest.Config{
		MaxFileSize: cfg.Parser.MaxFileSize,
	}, logger)

	// Kafka producer (parsed + errors topics).
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		RawTopic:      cfg.Kafka.RawTopic,
		ParsedTopic:   cfg.Kafka.ParsedTopic,
		ErrorTopic:    cfg.Kafka.ErrorTopic,
		RetryAttempts: cfg.Kafka.RetryAttempts,
		FlushTimeout:  cfg.Kafka.FlushTimeout,
		BatchSize:     cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	svc := &IngestorService{
		config:    cfg,
		processor: processor,
		producer:  producer,
		logger:    logger,
		metrics: &ServiceMetrics{
			StartTime:     time.Now(),
			FilingsByForm: make(map[string]int64),
		},
	}

	// Message handler closure.
	handler := svc.createMessageHandler()

	// Kafka consumer (group + retries). Messages that exhaust retries are
	// mirrored to the error topic before their offset is committed.
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.ConsumerGroup,
		RetryAttempts: cfg.Kafka.RetryAttempts,
		OnDiscard:     svc.discardHandler(),
	}, handler, logger)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	svc.consumer = consumer
	return svc, nil
}

// Start runs the consume loop and blocks until shutdown, then cleans up.
func (s *IngestorService) Start() error {
	s.logger.WithFields(logrus.Fields{
		"consumer_group": s.config.Kafka.ConsumerGroup,
		"raw_topic":      s.config.Kafka.RawTopic,
		"parsed_topic":   s.config.Kafka.ParsedTopic,
		"error_topic":    s.config.Kafka.ErrorTopic,
	}).Info("Starting ingestor service")

	// Periodic metrics log.
	s.startMetricsReporting()

	// Consume until context cancellation.
	topics := []string{s.config.Kafka.RawTopic}
	if err := s.consumer.Start(s.ctx, topics); err != nil {
		s.logger.WithError(err).Error("Consumer failed")
		return err
	}

	// Wait for background goroutines to exit, then cleanup.
	s.wg.Wait()
	s.cleanup()
	return nil
}

// createMessageHandler decodes, parses, and routes raw filing messages.
func (s *IngestorService) createMessageHandler() kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		start := time.Now()

		s.logger.WithFields(logrus.Fields{
			"topic":     message.Topic,
			"partition": message.Partition,
			"offset":    message.Offset,
			"key":       string(message.Key),
		}).Debug("Processing message")

		// Decode raw filing. A payload that does not unmarshal will never
		// succeed on retry, so report it and commit.
		var raw models.RawFiling
		if err := json.Unmarshal(message.Value, &raw); err != nil {
			s.logger.WithError(err).WithField("message_size", len(message.Value)).
				Error("Failed to unmarshal raw filing")
			s.incrementErrorCount()
			s.reportError(err, "unmarshal", string(message.Key), false)
			return nil
		}

		s.logger.WithFields(logrus.Fields{
			"filing_id": raw.ID,
			"filename":  raw.Filename,
			"source":    raw.Source,
		}).Info("Processing filing")

		// Parse pipeline. Parse failures are deterministic; report and commit.
		filing, err := s.processor.Process(ctx, &raw)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"filing_id": raw.ID, "filename": raw.Filename,
			}).Error("Failed to parse filing")
			s.incrementErrorCount()
			s.reportError(err, "parsing", raw.ID, false)
			return nil
		}

		// Send to parsed topic; a broker failure here is worth retrying.
		if err := s.producer.PublishParsed(ctx, filing); err != nil {
			s.logger.WithError(err).WithField("filing_id", filing.ID).
				Error("Failed to publish parsed filing")
			s.incrementErrorCount()
			return err
		}

		// Metrics.
		s.updateMetrics(time.Since(start), filing.FormType)

		s.logger.WithFields(logrus.Fields{
			"filing_id":        filing.ID,
			"accession_number": filing.AccessionNumber,
			"form_type":        filing.FormType,
			"documents":        len(filing.Documents),
			"processing_time":  time.Since(start),
		}).Info("Filing processed successfully")

		return nil
	}
}

// discardHandler reports messages that failed every retry.
func (s *IngestorService) discardHandler() kafka.DiscardHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage, err error) {
		s.incrementErrorCount()
		s.reportError(err, "delivery", string(message.Key), true)
	}
}

// reportError mirrors a failure to the error topic with context for triage.
func (s *IngestorService) reportError(err error, stage, filingID string, retryable bool) {
	if filingID == "" {
		filingID = "unknown"
	}

	perr := &models.ProcessingError{
		FilingID:  filingID,
		Error:     err.Error(),
		Stage:     stage,
		Timestamp: time.Now(),
		Retryable: retryable,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if sendErr := s.producer.PublishError(ctx, perr); sendErr != nil {
		s.logger.WithError(sendErr).Error("Failed to send error to error topic")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"filing_id": filingID,
		"stage":     stage,
		"retryable": retryable,
	}).Warn("Sent error to error topic")
}

// updateMetrics updates rolling counters and EMA of processing time.
func (s *IngestorService) updateMetrics(processingTime time.Duration, formType string) {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()

	s.metrics.ProcessedCount++
	s.metrics.LastProcessedAt = time.Now()
	s.metrics.TotalProcessingTime += processingTime

	if formType == "" {
		formType = "unknown"
	}
	s.metrics.FilingsByForm[formType]++

	// Exponential moving average (alpha = 0.1).
	ms := float64(processingTime.Nanoseconds()) / 1e6
	if s.metrics.AverageProcessingTime == 0 {
		s.metrics.AverageProcessingTime = ms
	} else {
		s.metrics.AverageProcessingTime = 0.9*s.metrics.AverageProcessingTime + 0.1*ms
	}
}

func (s *IngestorService) incrementErrorCount() {
	s.metrics.mu.Lock()
	s.metrics.ErrorCount++
	s.metrics.mu.Unlock()
}

// startMetricsReporting logs a heartbeat snapshot on an interval.
func (s *IngestorService) startMetricsReporting() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.logMetrics()
			case <-s.ctx.Done():
				s.logger.Info("Stopping metrics reporting")
				return
			}
		}
	}()
}

func (s *IngestorService) logMetrics() {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	uptime := time.Since(s.metrics.StartTime)
	var throughput float64
	if sec := uptime.Seconds(); sec > 0 {
		throughput = float64(s.metrics.ProcessedCount) / sec
	}

	s.logger.WithFields(logrus.Fields{
		"processed_count":            s.metrics.ProcessedCount,
		"error_count":                s.metrics.ErrorCount,
		"uptime_seconds":             uptime.Seconds(),
		"avg_processing_time_ms":     s.metrics.AverageProcessingTime,
		"throughput_filings_per_sec": throughput,
		"last_processed_at":          s.metrics.LastProcessedAt,
		"filings_by_form":            s.metrics.FilingsByForm,
	}).Info("Service metrics")
}

// cleanup closes client resources.
func (s *IngestorService) cleanup() {
	s.logger.Info("Cleaning up ingestor resources...")

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.WithError(err).Error("Error stopping consumer")
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.WithError(err).Error("Error closing producer")
		}
	}
	s.logger.Info("Ingestor cleanup completed")
}

// setupLogging configures Logrus according to config.
func setupLogging(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warn("Invalid log level, using info")
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	return logger
}

// getMetrics provides a snapshot map (safe for JSON) of service metrics.
func (s *IngestorService) getMetrics() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	uptime := time.Since(s.metrics.StartTime)
	var throughput float64
	if sec := uptime.Seconds(); sec > 0 {
		throughput = float64(s.metrics.ProcessedCount) / sec
	}
	var errRate float64
	total := s.metrics.ProcessedCount + s.metrics.ErrorCount
	if total > 0 {
		errRate = float64(s.metrics.ErrorCount) / float64(total)
	}

	// Copy the per-form counters; callers JSON-encode the result after the
	// lock is released, while the consumer goroutine keeps writing.
	byForm := make(map[string]int64, len(s.metrics.FilingsByForm))
	for k, v := range s.metrics.FilingsByForm {
		byForm[k] = v
	}

	return map[string]interface{}{
		"processed_count":        s.metrics.ProcessedCount,
		"error_count":            s.metrics.ErrorCount,
		"start_time":             s.metrics.StartTime,
		"last_processed_at":      s.metrics.LastProcessedAt,
		"avg_processing_time_ms": s.metrics.AverageProcessingTime,
		"total_processing_time":  s.metrics.TotalProcessingTime.String(),
		"uptime_seconds":         uptime.Seconds(),
		"throughput_per_second":  throughput,
		"error_rate":             errRate,
		"filings_by_form":        byForm,
	}
}
