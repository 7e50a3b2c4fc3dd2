package sgml

import (
	"bytes"
	"strings"
)

// Span is a byte range into the submission buffer. Field extraction works
// on spans until a consumer asks for content, so a multi-hundred-megabyte
// filing is scanned without per-field copies.
type Span struct {
	Start int
	End   int
}

// Slice returns the spanned window of buf without copying.
func (s Span) Slice(buf []byte) []byte { return buf[s.Start:s.End] }

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// IsEmpty reports whether the span covers no bytes.
func (s Span) IsEmpty() bool { return s.End <= s.Start }

// lineScanner walks a buffer line by line, tracking byte offsets. Lines
// exclude the trailing newline (and a preceding carriage return).
type lineScanner struct {
	buf []byte
	pos int
}

func newLineScanner(buf []byte, pos int) *lineScanner {
	return &lineScanner{buf: buf, pos: pos}
}

// offset returns the byte offset of the next unread line.
func (s *lineScanner) offset() int { return s.pos }

// next returns the span of the next line, or ok=false at end of input.
func (s *lineScanner) next() (line Span, ok bool) {
	if s.pos >= len(s.buf) {
		return Span{}, false
	}
	start := s.pos
	end := len(s.buf)
	if i := bytes.IndexByte(s.buf[start:], '\n'); i >= 0 {
		end = start + i
		s.pos = end + 1
	} else {
		s.pos = end
	}
	if end > start && s.buf[end-1] == '\r' {
		end--
	}
	return Span{Start: start, End: end}, true
}

// tag is one recognized tag occurrence: "<NAME>" or "<NAME>inline value"
// on a single line. Closing tags come back with the leading slash in Name;
// they are never required to match an opening tag, since EDGAR nesting is
// unreliable across decades of filings.
type tag struct {
	Name  string // lower-cased, without angle brackets
	Value Span   // inline text after '>', untrimmed
	Line  Span   // the full line
}

// isClose reports whether the tag is a closing tag.
func (t tag) isClose() bool { return strings.HasPrefix(t.Name, "/") }

// closes reports whether the tag closes the named open tag.
func (t tag) closes(name string) bool { return t.Name == "/"+name }

// parseTag interprets one line as a tag occurrence. Lines that do not open
// with '<' or carry no '>' are not tags; the caller decides whether they
// are continuation text or noise. Malformed tag syntax degrades to
// ok=false rather than an error.
func parseTag(buf []byte, line Span) (tag, bool) {
	raw := line.Slice(buf)
	trimmed := bytes.TrimLeft(raw, " \t")
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return tag{}, false
	}
	gt := bytes.IndexByte(trimmed, '>')
	if gt <= 1 {
		return tag{}, false
	}
	name := strings.ToLower(string(trimmed[1:gt]))
	lead := len(raw) - len(trimmed)
	valueStart := line.Start + lead + gt + 1
	return tag{
		Name:  name,
		Value: Span{Start: valueStart, End: line.End},
		Line:  line,
	}, true
}

// tagScanner yields tag occurrences in order, skipping non-tag lines. It
// is the lowest parsing layer: no semantics, read-only, and it cannot fail
// on malformed input.
type tagScanner struct {
	lines *lineScanner
	buf   []byte
}

func newTagScanner(buf []byte, pos int) *tagScanner {
	return &tagScanner{lines: newLineScanner(buf, pos), buf: buf}
}

// offset returns the byte offset the scanner will read next.
func (s *tagScanner) offset() int { return s.lines.offset() }

// next returns the next tag occurrence, or ok=false at end of input.
func (s *tagScanner) next() (tag, bool) {
	for {
		line, ok := s.lines.next()
		if !ok {
			return tag{}, false
		}
		if t, ok := parseTag(s.buf, line); ok {
			return t, true
		}
	}
}

// trimmedText returns the span's content with surrounding ASCII whitespace
// removed.
func trimmedText(buf []byte, s Span) string {
	return string(bytes.TrimSpace(s.Slice(buf)))
}
