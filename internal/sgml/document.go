package sgml

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
)

// Tag names with structural meaning inside a submission body.
const (
	tagDocument = "document"
	tagText     = "text"
)

// Document is one embedded sub-document of a submission. It is created by
// the segmenter and immutable afterwards; the extraction pipeline and
// batch processor borrow it, never mutate it.
type Document struct {
	// Seq is the 1-based position, taken from the <SEQUENCE> tag when it
	// parses as an integer and assigned by appearance order otherwise.
	Seq int

	// Type, Filename and Description mirror the corresponding tags and are
	// empty when the tag is absent; EDGAR guarantees none of them.
	Type        string
	Filename    string
	Description string

	// Tags holds every tag of the document block before <TEXT>, in order.
	Tags *Metadata

	// Payload spans the raw bytes between <TEXT> and </TEXT> (or end of
	// input when unterminated). Nothing is copied until materialization.
	Payload Span

	// Binary marks payloads that carry a non-text encoding, detected from
	// a uuencode begin line or a filename extension hint.
	Binary bool

	// Span covers the whole <DOCUMENT> block in the source buffer.
	Span Span
}

// binaryExtensions hints that a document payload is not text even when no
// encoding header is present.
var binaryExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".gif": true, ".png": true,
	".pdf": true, ".zip": true, ".xls": true, ".xlsx": true,
}

// segmentDocument consumes one <DOCUMENT> block starting at the given
// offset (which must point at the <DOCUMENT> line) and returns the
// document plus the offset just past it. A missing </DOCUMENT> closes the
// block at end of input; a new <DOCUMENT> before the close also ends the
// current block, so one missing close tag cannot swallow the rest of the
// submission. fallbackSeq is used when <SEQUENCE> is absent or garbled.
func segmentDocument(buf []byte, start, fallbackSeq int) (*Document, int) {
	doc := &Document{Tags: NewMetadata(), Seq: fallbackSeq}
	doc.Span.Start = start
	doc.Payload = Span{Start: start, End: start}

	lines := newLineScanner(buf, start)
	// Skip the <DOCUMENT> line itself.
	if _, ok := lines.next(); !ok {
		doc.Span.End = len(buf)
		return doc, len(buf)
	}

	var lastKey string
	end := len(buf)

scan:
	for {
		lineStart := lines.offset()
		line, ok := lines.next()
		if !ok {
			break
		}
		t, isTag := parseTag(buf, line)
		if !isTag {
			// Continuation of the previous tag value, the way long
			// DESCRIPTION lines wrap in older filings.
			appendContinuation(buf, doc.Tags, lastKey, line)
			continue
		}

		switch t.Name {
		case tagDocument:
			// Unterminated block ran into the next document.
			end = lineStart
			break scan
		case "/" + tagDocument:
			end = lines.offset()
			break scan
		case tagText:
			doc.Payload = segmentPayload(buf, t.Value.Start, lines)
			// Remaining lines until </DOCUMENT> are scanned for the close
			// tag only.
			lastKey = ""
		default:
			if t.isClose() {
				continue // tolerated, never required to match
			}
			lastKey = t.Name
			if text := trimmedText(buf, t.Value); text != "" {
				doc.Tags.Add(t.Name, TextValue(text))
			}
		}
	}

	doc.Span.End = end
	finalizeDocument(buf, doc)
	return doc, end
}

// segmentPayload spans the region between <TEXT> and its closing tag,
// starting right after the opening tag so inline content on the <TEXT>
// line survives. The scanner is positioned just past that line. A </TEXT> candidate
// only closes the payload when the block structure confirms it: the next
// non-blank line must be a document boundary (or input must end there).
// Stray </TEXT> text inside a payload is kept as payload. Text preceding
// </TEXT> on the same line belongs to the payload too.
func segmentPayload(buf []byte, start int, lines *lineScanner) Span {
	payload := Span{Start: start, End: len(buf)}
	closeTag := []byte("</TEXT>")

	for {
		line, ok := lines.next()
		if !ok {
			return payload
		}
		raw := line.Slice(buf)
		i := bytes.Index(raw, closeTag)
		if i < 0 {
			continue
		}
		if !atDocumentBoundary(buf, lines.offset()) {
			continue
		}
		payload.End = line.Start + i
		return payload
	}
}

// atDocumentBoundary reports whether the next non-blank line at pos is a
// document open/close tag or the input ends.
func atDocumentBoundary(buf []byte, pos int) bool {
	lines := newLineScanner(buf, pos)
	for {
		line, ok := lines.next()
		if !ok {
			return true
		}
		text := bytes.TrimSpace(line.Slice(buf))
		if len(text) == 0 {
			continue
		}
		t, isTag := parseTag(buf, line)
		if !isTag {
			return false
		}
		return t.Name == tagDocument || t.Name == "/"+tagDocument
	}
}

// appendContinuation extends the last tag's value with a wrapped line.
func appendContinuation(buf []byte, tags *Metadata, lastKey string, line Span) {
	if lastKey == "" {
		return
	}
	text := trimmedText(buf, line)
	if text == "" {
		return
	}
	v, ok := tags.Get(lastKey)
	if !ok || v.List != nil || v.Nested != nil {
		return
	}
	tags.Set(lastKey, TextValue(v.Text+" "+text))
}

// finalizeDocument lifts the well-known tags into fields and classifies
// the payload.
func finalizeDocument(buf []byte, doc *Document) {
	doc.Type = doc.Tags.Text("type")
	doc.Filename = doc.Tags.Text("filename")
	doc.Description = doc.Tags.Text("description")
	if seq, err := strconv.Atoi(strings.TrimSpace(doc.Tags.Text("sequence"))); err == nil && seq > 0 {
		doc.Seq = seq
	}
	doc.Binary = detectBinary(buf, doc.Payload, doc.Filename)
}

// detectBinary classifies a payload as binary when its first significant
// line (past any format envelope) is a uuencode begin line, or when the
// filename extension says so.
func detectBinary(buf []byte, payload Span, filename string) bool {
	if binaryExtensions[strings.ToLower(filepath.Ext(filename))] {
		return true
	}
	body := trimLeadingSpace(payload.Slice(buf))
	body, _ = stripEnvelope(body)
	return hasUUHeader(body)
}

func trimLeadingSpace(b []byte) []byte {
	return bytes.TrimLeft(b, " \t\r\n")
}
