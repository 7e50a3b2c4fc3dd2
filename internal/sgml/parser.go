package sgml

import (
	"context"
	"fmt"
	"os"
)

// Source names the submission input: inline content or a file path.
// Exactly one of the two must be set.
type Source struct {
	Content string
	Path    string
}

// FromFile returns a Source reading from the given path.
func FromFile(path string) Source { return Source{Path: path} }

// FromContent returns a Source over in-memory content.
func FromContent(content string) Source { return Source{Content: content} }

// load materializes the source into a single owned buffer. Spans index
// into this buffer for the lifetime of the Submission or Cursor.
func (s Source) load() ([]byte, error) {
	switch {
	case s.Content != "" && s.Path != "":
		return nil, fmt.Errorf("%w: both content and filepath provided", ErrInvalidArgument)
	case s.Content == "" && s.Path == "":
		return nil, fmt.Errorf("%w: either content or filepath must be provided", ErrInvalidArgument)
	case s.Path != "":
		buf, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return buf, nil
	default:
		return []byte(s.Content), nil
	}
}

// Submission is one parsed EDGAR filing package: the header metadata plus
// every embedded document in appearance order. A submission with zero
// documents is valid; header-only filings exist.
type Submission struct {
	Header    *Metadata
	Documents []*Document

	buf []byte
}

// DocumentContent materializes the payload of document i: envelope
// stripped and payload encoding decoded. The returned slice is a copy.
func (s *Submission) DocumentContent(i int) ([]byte, error) {
	if i < 0 || i >= len(s.Documents) {
		return nil, fmt.Errorf("%w: document index %d out of range [0,%d)", ErrInvalidArgument, i, len(s.Documents))
	}
	return materialize(s.buf, s.Documents[i]), nil
}

// RawPayload returns the unprocessed bytes between <TEXT> and </TEXT> for
// document i, without copying.
func (s *Submission) RawPayload(i int) ([]byte, error) {
	if i < 0 || i >= len(s.Documents) {
		return nil, fmt.Errorf("%w: document index %d out of range [0,%d)", ErrInvalidArgument, i, len(s.Documents))
	}
	return s.Documents[i].Payload.Slice(s.buf), nil
}

// ParseSubmission scans the entire input eagerly and returns the full
// submission. It fails only when the source cannot be read at all;
// missing or irregular tags degrade to absent fields.
func ParseSubmission(src Source) (*Submission, error) {
	return ParseSubmissionContext(context.Background(), src)
}

// ParseSubmissionContext is ParseSubmission with cooperative cancellation,
// checked between documents. Multi-gigabyte daily archives take a while;
// callers get a way out at document granularity.
func ParseSubmissionContext(ctx context.Context, src Source) (*Submission, error) {
	buf, err := src.load()
	if err != nil {
		return nil, err
	}

	sub := &Submission{buf: buf}
	headerEnd := findHeaderEnd(buf)
	sub.Header = parseHeader(buf, headerEnd)

	pos := headerEnd
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start, ok := findDocumentOpen(buf, pos)
		if !ok {
			break
		}
		doc, next := segmentDocument(buf, start, len(sub.Documents)+1)
		sub.Documents = append(sub.Documents, doc)
		pos = next
	}
	return sub, nil
}

// findHeaderEnd returns the offset of the first <DOCUMENT> line, or the
// input length for header-only submissions.
func findHeaderEnd(buf []byte) int {
	if start, ok := findDocumentOpen(buf, 0); ok {
		return start
	}
	return len(buf)
}

// findDocumentOpen locates the next line whose tag is <DOCUMENT>, at or
// after pos, returning the line's start offset.
func findDocumentOpen(buf []byte, pos int) (int, bool) {
	lines := newLineScanner(buf, pos)
	for {
		line, ok := lines.next()
		if !ok {
			return 0, false
		}
		if t, ok := parseTag(buf, line); ok && t.Name == tagDocument {
			return line.Start, true
		}
	}
}

// Cursor streams documents one at a time over a single scan of the input.
// The header is parsed eagerly at open (it is small and always precedes
// the documents); documents are segmented on demand by Advance. A cursor
// is single-owner mutable state: concurrent advancement needs external
// synchronization or one cursor per goroutine.
//
// Indexed access (DocumentCount, Document) is allowed at any point, even
// mixed with iteration: the first such call runs one linear pre-scan that
// records every <DOCUMENT> offset and caches it. The pre-scan does not
// move the streaming offset, so documents already yielded are unaffected
// and Advance continues where it left off.
type Cursor struct {
	buf     []byte
	header  *Metadata
	pos     int
	yielded int
	index   []int // offsets of <DOCUMENT> opens, built lazily
}

// OpenStream parses the header and returns a cursor positioned before the
// first document. Empty input fails with ErrEmptyInput.
func OpenStream(src Source) (*Cursor, error) {
	buf, err := src.load()
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: submission source is empty", ErrEmptyInput)
	}
	headerEnd := findHeaderEnd(buf)
	return &Cursor{
		buf:    buf,
		header: parseHeader(buf, headerEnd),
		pos:    headerEnd,
	}, nil
}

// Metadata returns the header metadata. Constant after open.
func (c *Cursor) Metadata() *Metadata { return c.header }

// Yielded returns how many documents Advance has produced so far.
func (c *Cursor) Yielded() int { return c.yielded }

// Advance segments and returns the next document, or nil once no
// <DOCUMENT> tag remains. The input buffer is fully resident after open,
// so advancement itself cannot fail.
func (c *Cursor) Advance() *Document {
	start, ok := findDocumentOpen(c.buf, c.pos)
	if !ok {
		c.pos = len(c.buf)
		return nil
	}
	doc, next := segmentDocument(c.buf, start, c.yielded+1)
	c.pos = next
	c.yielded++
	return doc
}

// DocumentCount returns the total number of documents in the submission,
// building the position index on first call.
func (c *Cursor) DocumentCount() int {
	c.buildIndex()
	return len(c.index)
}

// Document returns document i (0-based) via the position index, without
// disturbing the streaming position.
func (c *Cursor) Document(i int) (*Document, error) {
	c.buildIndex()
	if i < 0 || i >= len(c.index) {
		return nil, fmt.Errorf("%w: document index %d out of range [0,%d)", ErrInvalidArgument, i, len(c.index))
	}
	doc, _ := segmentDocument(c.buf, c.index[i], i+1)
	return doc, nil
}

// Content materializes a document's payload against the cursor's buffer.
func (c *Cursor) Content(doc *Document) []byte {
	return materialize(c.buf, doc)
}

// buildIndex records every <DOCUMENT> offset in one linear scan. Cached;
// the scan runs at most once per cursor.
func (c *Cursor) buildIndex() {
	if c.index != nil {
		return
	}
	c.index = []int{}
	pos := 0
	for {
		start, ok := findDocumentOpen(c.buf, pos)
		if !ok {
			return
		}
		c.index = append(c.index, start)
		_, next := segmentDocument(c.buf, start, 0)
		pos = next
	}
}
