// Package ingest turns raw filing messages into parsed filings by running
// the submission parser over their decoded content.
package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"edgar-sgml-ingest-system/internal/models"
	"edgar-sgml-ingest-system/internal/sgml"

	"github.com/sirupsen/logrus"
)

// Processor orchestrates decoding + parsing to produce a ParsedFiling.
type Processor struct {
	logger *logrus.Logger
	config Config
}

// Config controls parsing limits.
type Config struct {
	MaxFileSize int64 `json:"max_file_size"`
}

// DefaultConfig returns safe defaults for local/dev usage.
func DefaultConfig() Config {
	return Config{MaxFileSize: 256 << 20}
}

// NewProcessor builds a Processor.
func NewProcessor(cfg Config, logger *logrus.Logger) *Processor {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 256 << 20
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Processor{logger: logger, config: cfg}
}

// Process validates and decodes the raw filing, parses the submission, and
// returns a ParsedFiling carrying the full header plus per-document records.
func (p *Processor) Process(ctx context.Context, raw *models.RawFiling) (*models.ParsedFiling, error) {
	start := time.Now()

	p.logger.WithFields(logrus.Fields{
		"filing_id": raw.ID,
		"filename":  raw.Filename,
		"source":    raw.Source,
		"size_b64":  len(raw.ContentB64),
	}).Info("starting filing ingest")

	if err := raw.Validate(); err != nil {
		p.logger.WithError(err).Error("invalid raw filing")
		return nil, fmt.Errorf("invalid raw filing: %w", err)
	}

	content, err := base64.StdEncoding.DecodeString(raw.ContentB64)
	if err != nil {
		p.logger.WithError(err).Error("failed to decode base64 content")
		return nil, fmt.Errorf("failed to decode base64 content: %w", err)
	}
	if int64(len(content)) > p.config.MaxFileSize {
		return nil, fmt.Errorf("filing exceeds size limit: %d > %d bytes", len(content), p.config.MaxFileSize)
	}

	sub, err := sgml.ParseSubmissionContext(ctx, sgml.FromContent(string(content)))
	if err != nil {
		p.logger.WithError(err).Error("failed to parse submission")
		return nil, fmt.Errorf("failed to parse submission: %w", err)
	}

	header, err := sub.Header.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize header: %w", err)
	}

	records := make([]models.DocumentRecord, 0, len(sub.Documents))
	for i, doc := range sub.Documents {
		payload, err := sub.RawPayload(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read document %d payload: %w", i, err)
		}
		records = append(records, models.DocumentRecord{
			Sequence:    doc.Seq,
			Type:        doc.Type,
			Filename:    doc.Filename,
			Description: doc.Description,
			Binary:      doc.Binary,
			Size:        len(payload),
		})
	}

	filing := &models.ParsedFiling{
		ID:              raw.ID,
		AccessionNumber: headerText(sub.Header, "accession-number", "accession number"),
		FormType:        headerText(sub.Header, "type", "conformed submission type"),
		FiledAs:         headerText(sub.Header, "filing-date", "filed as of date"),
		Filename:        raw.Filename,
		Header:          header,
		Documents:       records,
		Source:          raw.Source,
		Timestamp:       raw.Timestamp,
		ProcessedAt:     time.Now(),
		Size:            int64(len(content)),
	}

	p.logger.WithFields(logrus.Fields{
		"filing_id":        filing.ID,
		"accession_number": filing.AccessionNumber,
		"form_type":        filing.FormType,
		"documents":        len(filing.Documents),
		"processing_time":  time.Since(start),
	}).Info("filing ingest completed successfully")

	return filing, nil
}

// headerText returns the first text value found under the candidate keys.
// Dashed and tab submission formats spell the same field differently, so
// both spellings are tried.
func headerText(header *sgml.Metadata, keys ...string) string {
	for _, key := range keys {
		if text := header.Text(key); text != "" {
			return text
		}
	}
	return ""
}
