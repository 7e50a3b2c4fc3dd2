// Package extract materializes parsed submissions to a filesystem layout:
// one file per embedded document plus a metadata.json record, all under a
// caller-supplied output directory.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"edgar-sgml-ingest-system/internal/sgml"

	"github.com/sirupsen/logrus"
)

// MetadataFilename is the fixed name of the metadata record written next
// to the extracted documents.
const MetadataFilename = "metadata.json"

// Extractor writes submissions to disk. Per-document failures (decode,
// single-file write) are logged and skipped; only directory-level
// failures abort the extraction.
type Extractor struct {
	logger *logrus.Logger
}

// New returns an Extractor logging through the given logger, or the
// standard logger when nil.
func New(logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Extractor{logger: logger}
}

// ExtractSource parses the source eagerly and extracts it to dir.
func (e *Extractor) ExtractSource(ctx context.Context, src sgml.Source, dir string) error {
	sub, err := sgml.ParseSubmissionContext(ctx, src)
	if err != nil {
		return err
	}
	return e.Extract(ctx, sub, dir)
}

// Extract writes every document of the submission plus the metadata
// record into dir, creating the directory (and parents) if absent. File
// names are deterministic, so re-running into the same directory
// reproduces the identical file set.
func (e *Extractor) Extract(ctx context.Context, sub *sgml.Submission, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := e.writeMetadata(sub, dir); err != nil {
		return err
	}

	used := make(map[string]bool, len(sub.Documents))
	for i, doc := range sub.Documents {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := documentFilename(doc, used)
		used[name] = true

		content, err := sub.DocumentContent(i)
		if err != nil {
			e.logger.WithError(err).WithField("sequence", doc.Seq).
				Warn("skipping document with unreadable payload")
			continue
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"sequence": doc.Seq,
				"file":     name,
			}).Warn("failed to write document file")
			continue
		}

		e.logger.WithFields(logrus.Fields{
			"sequence": doc.Seq,
			"file":     name,
			"bytes":    len(content),
			"binary":   doc.Binary,
		}).Debug("document extracted")
	}

	return nil
}

// writeMetadata serializes the header metadata plus the per-document tag
// blocks under a documents key, in insertion order.
func (e *Extractor) writeMetadata(sub *sgml.Submission, dir string) error {
	record := sub.Header.Clone()
	docTags := make([]sgml.Value, 0, len(sub.Documents))
	for _, doc := range sub.Documents {
		docTags = append(docTags, sgml.NestedValue(doc.Tags))
	}
	record.Set("documents", sgml.Value{List: docTags})

	buf, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	path := filepath.Join(dir, MetadataFilename)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write metadata record: %w", err)
	}
	return nil
}

// documentFilename derives the deterministic output name
// <sequence>_<base><ext>. base comes from the sanitized FILENAME, else
// the lower-cased TYPE, else "document"; the extension from FILENAME,
// else .bin for binary payloads and .txt otherwise. A collision appends a
// counter, which only happens when two documents share a sequence number.
func documentFilename(doc *sgml.Document, used map[string]bool) string {
	base := "document"
	ext := ".txt"
	if doc.Binary {
		ext = ".bin"
	}

	if doc.Filename != "" {
		safe := SafeFilename(doc.Filename)
		if e := filepath.Ext(safe); e != "" {
			ext = e
			safe = strings.TrimSuffix(safe, e)
		}
		if safe != "" {
			base = safe
		}
	} else if doc.Type != "" {
		base = SafeFilename(strings.ToLower(doc.Type))
	}

	name := fmt.Sprintf("%d_%s%s", doc.Seq, base, ext)
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%d_%s_%d%s", doc.Seq, base, n, ext)
	}
	return name
}

// SafeFilename replaces every character outside [A-Za-z0-9._-] with an
// underscore so tag-derived names cannot escape the output directory.
func SafeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
