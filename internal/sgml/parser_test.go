package sgml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSubmission = `<SUBMISSION>
<ACCESSION-NUMBER>0001-23
<DOCUMENT>
<TYPE>10-K
<SEQUENCE>1
<FILENAME>a.txt
<TEXT>
hello
</TEXT>
</DOCUMENT>
`

const threeDocSubmission = `<SUBMISSION>
<ACCESSION-NUMBER>0002-34
<DOCUMENT>
<TYPE>10-K
<SEQUENCE>1
<FILENAME>main.htm
<TEXT>
first body
</TEXT>
</DOCUMENT>
<DOCUMENT>
<TYPE>EX-99.1
<SEQUENCE>2
<FILENAME>ex99.htm
<TEXT>
second body
</TEXT>
</DOCUMENT>
<DOCUMENT>
<TYPE>GRAPHIC
<SEQUENCE>3
<FILENAME>logo.jpg
<TEXT>
begin 644 logo.jpg
#0V%T
end
</TEXT>
</DOCUMENT>
`

func TestParseSubmission(t *testing.T) {
	sub, err := ParseSubmission(FromContent(sampleSubmission))
	if err != nil {
		t.Fatalf("ParseSubmission: %v", err)
	}

	if got := sub.Header.Text("accession-number"); got != "0001-23" {
		t.Errorf("accession-number = %q", got)
	}
	if len(sub.Documents) != 1 {
		t.Fatalf("document count = %d, want 1", len(sub.Documents))
	}

	doc := sub.Documents[0]
	if doc.Type != "10-K" || doc.Seq != 1 || doc.Filename != "a.txt" {
		t.Errorf("document fields = %q/%d/%q", doc.Type, doc.Seq, doc.Filename)
	}

	content, err := sub.DocumentContent(0)
	if err != nil {
		t.Fatalf("DocumentContent: %v", err)
	}
	if string(content) != "hello\n" {
		t.Errorf("content = %q, want %q", content, "hello\n")
	}
}

func TestParseSubmissionFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub.sgml")
	if err := os.WriteFile(path, []byte(sampleSubmission), 0o644); err != nil {
		t.Fatal(err)
	}

	sub, err := ParseSubmission(FromFile(path))
	if err != nil {
		t.Fatalf("ParseSubmission: %v", err)
	}
	if len(sub.Documents) != 1 {
		t.Errorf("document count = %d, want 1", len(sub.Documents))
	}
}

func TestSourceValidation(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr error
	}{
		{"both set", Source{Content: "x", Path: "y"}, ErrInvalidArgument},
		{"neither set", Source{}, ErrInvalidArgument},
		{"missing file", FromFile(filepath.Join(t.TempDir(), "absent.sgml")), ErrMalformedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSubmission(tt.src)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSubmissionHeaderOnly(t *testing.T) {
	sub, err := ParseSubmission(FromContent("<SUBMISSION>\n<ACCESSION-NUMBER>0003-45\n"))
	if err != nil {
		t.Fatalf("ParseSubmission: %v", err)
	}
	if len(sub.Documents) != 0 {
		t.Errorf("document count = %d, want 0", len(sub.Documents))
	}
	if got := sub.Header.Text("accession-number"); got != "0003-45" {
		t.Errorf("accession-number = %q", got)
	}
}

func TestParseSubmissionContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ParseSubmissionContext(ctx, FromContent(threeDocSubmission)); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestOpenStreamEmptyInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sgml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenStream(FromFile(path)); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("error = %v, want ErrEmptyInput", err)
	}
}

func TestCursorStreaming(t *testing.T) {
	c, err := OpenStream(FromContent(threeDocSubmission))
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if got := c.Metadata().Text("accession-number"); got != "0002-34" {
		t.Errorf("header accession-number = %q", got)
	}

	var seqs []int
	for doc := c.Advance(); doc != nil; doc = c.Advance() {
		seqs = append(seqs, doc.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Errorf("streamed sequences = %v", seqs)
	}
	if c.Yielded() != 3 {
		t.Errorf("Yielded = %d, want 3", c.Yielded())
	}
	if c.Advance() != nil {
		t.Error("Advance after exhaustion should stay nil")
	}
}

// Streaming and eager parsing must yield the same documents.
func TestCursorMatchesEagerParse(t *testing.T) {
	sub, err := ParseSubmission(FromContent(threeDocSubmission))
	if err != nil {
		t.Fatalf("ParseSubmission: %v", err)
	}
	c, err := OpenStream(FromContent(threeDocSubmission))
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if got := c.DocumentCount(); got != len(sub.Documents) {
		t.Fatalf("DocumentCount = %d, eager count = %d", got, len(sub.Documents))
	}

	for i, want := range sub.Documents {
		doc := c.Advance()
		if doc == nil {
			t.Fatalf("cursor exhausted at %d", i)
		}
		if doc.Seq != want.Seq || doc.Type != want.Type || doc.Filename != want.Filename {
			t.Errorf("doc %d = %q/%d/%q, eager %q/%d/%q",
				i, doc.Type, doc.Seq, doc.Filename, want.Type, want.Seq, want.Filename)
		}
		eager, _ := sub.DocumentContent(i)
		if string(c.Content(doc)) != string(eager) {
			t.Errorf("doc %d content differs between cursor and eager parse", i)
		}
	}
}

func TestCursorIndexedAccessDoesNotDisturbStream(t *testing.T) {
	c, err := OpenStream(FromContent(threeDocSubmission))
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	first := c.Advance()
	if first == nil || first.Seq != 1 {
		t.Fatalf("first = %+v", first)
	}

	// Random access in the middle of iteration.
	last, err := c.Document(2)
	if err != nil {
		t.Fatalf("Document(2): %v", err)
	}
	if last.Type != "GRAPHIC" {
		t.Errorf("Document(2).Type = %q", last.Type)
	}
	if _, err := c.Document(3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Document(3) error = %v, want ErrInvalidArgument", err)
	}

	// Iteration resumes where it left off.
	second := c.Advance()
	if second == nil || second.Seq != 2 {
		t.Errorf("second after indexed access = %+v", second)
	}
}

func TestDocumentContentOutOfRange(t *testing.T) {
	sub, err := ParseSubmission(FromContent(sampleSubmission))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sub.DocumentContent(5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("DocumentContent error = %v, want ErrInvalidArgument", err)
	}
	if _, err := sub.RawPayload(5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RawPayload error = %v, want ErrInvalidArgument", err)
	}
	if _, err := sub.RawPayload(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RawPayload(-1) error = %v, want ErrInvalidArgument", err)
	}
	if raw, err := sub.RawPayload(0); err != nil || !strings.Contains(string(raw), "hello") {
		t.Errorf("RawPayload(0) = %q, %v", raw, err)
	}
}

func TestUUEncodedDocumentContent(t *testing.T) {
	sub, err := ParseSubmission(FromContent(threeDocSubmission))
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Documents[2].Binary {
		t.Error("uuencoded document not classified as binary")
	}
	content, err := sub.DocumentContent(2)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "Cat" {
		t.Errorf("decoded content = %q, want %q", content, "Cat")
	}
}
