package sgml

import (
	"bytes"
	"strings"

	"github.com/sirupsen/logrus"
)

// headerFormat identifies how the metadata block before the first
// <DOCUMENT> is laid out. EDGAR has shipped two layouts over the years:
// the dashed dissemination format nests with explicit closing tags, the
// tab format nests by indentation (and uses KEY: value lines). Privacy-
// enhanced submissions are tab format behind a PEM-style envelope.
type headerFormat int

const (
	formatDashed headerFormat = iota
	formatTab
	formatTabPrivacy
)

const privacyBegin = "-----BEGIN PRIVACY-ENHANCED MESSAGE-----"

// detectFormat classifies the submission from its first line. Unknown
// first lines fall back to the dashed parser rather than failing: the
// parser must degrade on irregular input, never abort.
func detectFormat(buf []byte) headerFormat {
	end := bytes.IndexByte(buf, '\n')
	if end < 0 {
		end = len(buf)
	}
	first := string(bytes.TrimSpace(buf[:end]))
	switch {
	case strings.HasPrefix(first, "<SUBMISSION>"):
		return formatDashed
	case strings.HasPrefix(first, privacyBegin):
		return formatTabPrivacy
	case strings.HasPrefix(first, "<SEC-DOCUMENT>"):
		return formatTab
	default:
		plog.WithField("first_line", truncate(first, 80)).
			Warn("unrecognized submission preamble, assuming dashed format")
		return formatDashed
	}
}

// structural tags delimit regions; they never become metadata keys with
// nested content of their own.
func isStructuralTag(name string) bool {
	switch name {
	case "sec-header", "sec-document", "submission", "ims-document":
		return true
	}
	return false
}

// parseHeader builds the metadata block from buf[:end], where end is the
// offset of the first <DOCUMENT> tag (or the whole input for header-only
// submissions).
func parseHeader(buf []byte, end int) *Metadata {
	switch detectFormat(buf) {
	case formatTab:
		return parseTabHeader(buf, end, false)
	case formatTabPrivacy:
		return parseTabHeader(buf, end, true)
	default:
		return parseDashedHeader(buf, end)
	}
}

// dashedLookahead bounds the closing-tag search per open tag. Filer blocks
// close within a handful of lines; an unbounded search would be quadratic
// on pathological headers.
const dashedLookahead = 100

// parseDashedHeader handles the <TAG>value / <TAG>...</TAG> layout.
// Tags whose closing tag appears within the header region become nested
// blocks (FILER, SUBJECT-COMPANY); repeated tags accumulate into lists.
func parseDashedHeader(buf []byte, end int) *Metadata {
	// Collect tag lines first so nesting can look ahead by index.
	var tags []tag
	sc := newTagScanner(buf[:end], 0)
	for {
		t, ok := sc.next()
		if !ok {
			break
		}
		tags = append(tags, t)
	}

	root := NewMetadata()
	dictStack := []*Metadata{root}
	tagStack := []string{}

	for i, t := range tags {
		if isStructuralTag(strings.TrimPrefix(t.Name, "/")) {
			if text := trimmedText(buf, t.Value); text != "" && !t.isClose() {
				dictStack[len(dictStack)-1].Add(t.Name, TextValue(text))
			}
			continue
		}

		if t.isClose() {
			if len(tagStack) > 0 && t.closes(tagStack[len(tagStack)-1]) {
				tagStack = tagStack[:len(tagStack)-1]
				dictStack = dictStack[:len(dictStack)-1]
			}
			// Unmatched closing tags are dropped; EDGAR nesting is not
			// trustworthy enough to treat them as errors.
			continue
		}

		current := dictStack[len(dictStack)-1]

		if hasClosingTag(tags, i, t.Name) {
			nested := NewMetadata()
			current.Add(t.Name, NestedValue(nested))
			tagStack = append(tagStack, t.Name)
			dictStack = append(dictStack, nested)
			continue
		}

		if text := trimmedText(buf, t.Value); text != "" {
			if _, dup := current.Get(t.Name); dup {
				plog.WithField("tag", t.Name).Debug("repeated header tag, promoting to list")
			}
			current.Add(t.Name, TextValue(text))
		}
	}

	return root
}

// hasClosingTag reports whether a matching closing tag follows within the
// lookahead window.
func hasClosingTag(tags []tag, from int, name string) bool {
	limit := from + 1 + dashedLookahead
	if limit > len(tags) {
		limit = len(tags)
	}
	for _, t := range tags[from+1 : limit] {
		if t.closes(name) {
			return true
		}
	}
	return false
}

// parseTabHeader handles the indentation-nested layout used by
// <SEC-DOCUMENT> submissions. Both <TAG>value and KEY: value lines occur;
// a line with no value opens an indented block.
func parseTabHeader(buf []byte, end int, privacy bool) *Metadata {
	root := NewMetadata()
	start := 0
	if privacy {
		start = capturePrivacyEnvelope(buf, end, root)
	}

	indentStack := []int{-1}
	dictStack := []*Metadata{root}

	lines := newLineScanner(buf[:end], start)
	for {
		line, ok := lines.next()
		if !ok {
			break
		}
		raw := line.Slice(buf)
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		indent := 0
		for indent < len(raw) && (raw[indent] == ' ' || raw[indent] == '\t') {
			indent++
		}

		var key, text string
		if t, ok := parseTag(buf, line); ok {
			if t.isClose() {
				continue
			}
			key, text = t.Name, trimmedText(buf, t.Value)
		} else if colon := bytes.IndexByte(raw, ':'); colon >= 0 {
			key = strings.ToLower(string(bytes.TrimSpace(raw[:colon])))
			text = string(bytes.TrimSpace(raw[colon+1:]))
			if key == "" {
				continue
			}
		} else {
			continue
		}

		// Close blocks whose indentation this line has left.
		for len(indentStack) > 1 && indentStack[len(indentStack)-1] >= indent {
			indentStack = indentStack[:len(indentStack)-1]
			dictStack = dictStack[:len(dictStack)-1]
		}
		current := dictStack[len(dictStack)-1]

		if text != "" {
			current.Add(key, TextValue(text))
			continue
		}

		nested := NewMetadata()
		current.Add(key, NestedValue(nested))
		indentStack = append(indentStack, indent)
		dictStack = append(dictStack, nested)
	}

	return root
}

// capturePrivacyEnvelope records the PEM-style envelope under the
// privacy-enhanced-message key and returns the offset where the tabular
// header resumes.
func capturePrivacyEnvelope(buf []byte, end int, root *Metadata) int {
	lines := newLineScanner(buf[:end], 0)
	inEnvelope := false
	var msg []string
	resume := 0

	for {
		line, ok := lines.next()
		if !ok {
			resume = lines.offset()
			break
		}
		text := string(bytes.TrimSpace(line.Slice(buf)))
		if !inEnvelope {
			if text == privacyBegin {
				inEnvelope = true
				resume = lines.offset()
			}
			continue
		}
		// The envelope ends at a blank line or the first header tag.
		if text == "" || startsHeaderTag(text) {
			resume = line.Start
			break
		}
		msg = append(msg, text)
		resume = lines.offset()
	}

	if len(msg) > 0 {
		root.Add("privacy-enhanced-message", TextValue(strings.Join(msg, "\n")))
	}
	return resume
}

// startsHeaderTag reports whether the line looks like the beginning of the
// tag-structured header (a '<' followed by an uppercase letter somewhere).
func startsHeaderTag(text string) bool {
	i := strings.IndexByte(text, '<')
	if i < 0 {
		return false
	}
	for _, r := range text[i+1:] {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// plog is the package logger. Services replace it via SetLogger so parser
// warnings land in their structured output.
var plog = logrus.StandardLogger()

// SetLogger replaces the logger used for parse warnings.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		plog = l
	}
}
