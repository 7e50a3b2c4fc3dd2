package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawFiling represents an unparsed submission as published to Kafka.
type RawFiling struct {
	ID         string            `json:"id"`
	Filename   string            `json:"filename"`
	ContentB64 string            `json:"content_base64"`
	Source     string            `json:"source"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate ensures that required fields are present in RawFiling.
func (rf *RawFiling) Validate() error {
	if rf.ID == "" {
		return fmt.Errorf("filing ID is required")
	}
	if rf.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	if rf.ContentB64 == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// DocumentRecord summarizes one embedded document of a parsed filing.
type DocumentRecord struct {
	Sequence    int    `json:"sequence"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Description string `json:"description,omitempty"`
	Binary      bool   `json:"binary"`
	Size        int    `json:"size"`
}

// ParsedFiling represents a fully parsed submission ready for indexing.
type ParsedFiling struct {
	ID              string           `json:"id"`
	AccessionNumber string           `json:"accession_number"`
	FormType        string           `json:"form_type,omitempty"`
	FiledAs         string           `json:"filed_as,omitempty"`
	Filename        string           `json:"filename"`
	Header          json.RawMessage  `json:"header"`
	Documents       []DocumentRecord `json:"documents"`
	Source          string           `json:"source,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	ProcessedAt     time.Time        `json:"processed_at"`
	Size            int64            `json:"size"`
}

// ToJSON serializes ParsedFiling to JSON bytes.
func (pf *ParsedFiling) ToJSON() ([]byte, error) {
	return json.Marshal(pf)
}

// FromJSON deserializes JSON bytes into a ParsedFiling.
func FromJSON(data []byte) (*ParsedFiling, error) {
	var pf ParsedFiling
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

// ProcessingError represents failures at various pipeline stages.
type ProcessingError struct {
	FilingID  string    `json:"filing_id"`
	Error     string    `json:"error"` // A brief error message
	Stage     string    `json:"stage"` // E.g., "decoding", "parsing", "indexing"
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"` // Whether retry is safe
}
