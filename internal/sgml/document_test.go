package sgml

import (
	"strings"
	"testing"
)

func segmentFirst(t *testing.T, input string) (*Document, []byte) {
	t.Helper()
	buf := []byte(input)
	start, ok := findDocumentOpen(buf, 0)
	if !ok {
		t.Fatal("no <DOCUMENT> tag in input")
	}
	doc, _ := segmentDocument(buf, start, 1)
	return doc, buf
}

func TestSegmentDocumentFields(t *testing.T) {
	input := `<DOCUMENT>
<TYPE>EX-99.1
<SEQUENCE>2
<FILENAME>exhibit.htm
<DESCRIPTION>PRESS RELEASE
<TEXT>
<html>body</html>
</TEXT>
</DOCUMENT>
`
	doc, buf := segmentFirst(t, input)

	if doc.Type != "EX-99.1" {
		t.Errorf("Type = %q", doc.Type)
	}
	if doc.Seq != 2 {
		t.Errorf("Seq = %d, want 2 (from SEQUENCE tag)", doc.Seq)
	}
	if doc.Filename != "exhibit.htm" {
		t.Errorf("Filename = %q", doc.Filename)
	}
	if doc.Description != "PRESS RELEASE" {
		t.Errorf("Description = %q", doc.Description)
	}
	if got := string(materialize(buf, doc)); got != "<html>body</html>\n" {
		t.Errorf("payload = %q", got)
	}
	if doc.Binary {
		t.Error("html payload classified as binary")
	}
}

func TestSegmentDocumentGarbledSequence(t *testing.T) {
	input := "<DOCUMENT>\n<SEQUENCE>abc\n<TEXT>\nx\n</TEXT>\n</DOCUMENT>\n"
	doc, _ := segmentFirst(t, input)
	if doc.Seq != 1 {
		t.Errorf("Seq = %d, want fallback 1 for garbled SEQUENCE", doc.Seq)
	}
}

func TestSegmentDocumentUnterminated(t *testing.T) {
	// Missing </TEXT> and </DOCUMENT>: the payload runs to end of input.
	input := "<DOCUMENT>\n<TYPE>10-K\n<TEXT>\npartial content\nmore content"
	doc, buf := segmentFirst(t, input)

	got := string(materialize(buf, doc))
	if got != "partial content\nmore content" {
		t.Errorf("payload = %q", got)
	}
	if doc.Span.End != len(buf) {
		t.Errorf("Span.End = %d, want %d", doc.Span.End, len(buf))
	}
}

func TestSegmentDocumentNextOpenClosesBlock(t *testing.T) {
	// A new <DOCUMENT> before </DOCUMENT> ends the current block so one
	// missing close tag cannot swallow the rest of the submission.
	input := "<DOCUMENT>\n<TYPE>FIRST\n<TEXT>\none\n</TEXT>\n<DOCUMENT>\n<TYPE>SECOND\n<TEXT>\ntwo\n</TEXT>\n</DOCUMENT>\n"
	buf := []byte(input)

	first, next := segmentDocument(buf, 0, 1)
	if first.Type != "FIRST" {
		t.Fatalf("first Type = %q", first.Type)
	}
	second, _ := segmentDocument(buf, next, 2)
	if second.Type != "SECOND" {
		t.Fatalf("second Type = %q", second.Type)
	}
	if got := string(materialize(buf, second)); got != "two\n" {
		t.Errorf("second payload = %q", got)
	}
}

func TestSegmentPayloadLeftoverText(t *testing.T) {
	// Payload text on the </TEXT> line itself belongs to the payload.
	input := "<DOCUMENT>\n<TEXT>\nline one\ntrailing</TEXT>\n</DOCUMENT>\n"
	doc, buf := segmentFirst(t, input)
	if got := string(materialize(buf, doc)); got != "line one\ntrailing" {
		t.Errorf("payload = %q", got)
	}
}

func TestSegmentPayloadInlineTextAfterOpenTag(t *testing.T) {
	input := "<DOCUMENT>\n<TEXT>inline start\nrest\n</TEXT>\n</DOCUMENT>\n"
	doc, buf := segmentFirst(t, input)
	if got := string(materialize(buf, doc)); got != "inline start\nrest\n" {
		t.Errorf("payload = %q", got)
	}
}

func TestSegmentPayloadStrayCloseTagKept(t *testing.T) {
	// A </TEXT> not followed by a document boundary is payload content.
	input := "<DOCUMENT>\n<TEXT>\nbefore\n</TEXT>\nstill payload\n</TEXT>\n</DOCUMENT>\n"
	doc, buf := segmentFirst(t, input)
	got := string(materialize(buf, doc))
	if !strings.Contains(got, "still payload") {
		t.Errorf("payload lost content after stray close tag: %q", got)
	}
	if strings.Contains(got, "</DOCUMENT>") {
		t.Errorf("payload overran the document: %q", got)
	}
}

func TestSegmentDocumentContinuationLines(t *testing.T) {
	input := "<DOCUMENT>\n<DESCRIPTION>FIRST PART\nSECOND PART\n<TEXT>\nx\n</TEXT>\n</DOCUMENT>\n"
	doc, _ := segmentFirst(t, input)
	if doc.Description != "FIRST PART SECOND PART" {
		t.Errorf("Description = %q, want wrapped lines joined", doc.Description)
	}
}

func TestDetectBinary(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		filename string
		want     bool
	}{
		{
			"uuencoded payload",
			"<DOCUMENT>\n<FILENAME>img.txt\n<TEXT>\nbegin 644 img.jpg\n#0V%T\nend\n</TEXT>\n</DOCUMENT>\n",
			"img.txt", true,
		},
		{
			"binary extension",
			"<DOCUMENT>\n<FILENAME>chart.jpg\n<TEXT>\nraw\n</TEXT>\n</DOCUMENT>\n",
			"chart.jpg", true,
		},
		{
			"plain text",
			"<DOCUMENT>\n<FILENAME>note.txt\n<TEXT>\nhello\n</TEXT>\n</DOCUMENT>\n",
			"note.txt", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, _ := segmentFirst(t, tt.input)
			if doc.Binary != tt.want {
				t.Errorf("Binary = %v, want %v", doc.Binary, tt.want)
			}
		})
	}
}
