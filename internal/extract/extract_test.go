package extract

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"edgar-sgml-ingest-system/internal/sgml"
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
<DOCUMENT>
<TYPE>EX-99.1
<SEQUENCE>2
<TEXT>
exhibit body
</TEXT>
</DOCUMENT>
`

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestExtractSource(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	e := New(nil)
	if err := e.ExtractSource(context.Background(), sgml.FromContent(sampleSubmission), dir); err != nil {
		t.Fatalf("ExtractSource: %v", err)
	}

	got := listDir(t, dir)
	want := []string{"1_a.txt", "2_ex-99.1.txt", "metadata.json"}
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("files = %v, want %v", got, want)
		}
	}

	content, err := os.ReadFile(filepath.Join(dir, "1_a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "hello\n" {
		t.Errorf("1_a.txt = %q, want %q", content, "hello\n")
	}
}

func TestExtractMetadataRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	e := New(nil)
	if err := e.ExtractSource(context.Background(), sgml.FromContent(sampleSubmission), dir); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFilename))
	if err != nil {
		t.Fatal(err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("metadata.json is not valid JSON: %v", err)
	}
	if record["accession-number"] != "0001-23" {
		t.Errorf("accession-number = %v", record["accession-number"])
	}
	docs, ok := record["documents"].([]interface{})
	if !ok || len(docs) != 2 {
		t.Fatalf("documents = %v, want 2 entries", record["documents"])
	}
	first, _ := docs[0].(map[string]interface{})
	if first["filename"] != "a.txt" {
		t.Errorf("first document filename = %v", first["filename"])
	}
}

// Re-running an extraction must reproduce the identical file set.
func TestExtractIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	e := New(nil)

	for i := 0; i < 2; i++ {
		if err := e.ExtractSource(context.Background(), sgml.FromContent(sampleSubmission), dir); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	got := listDir(t, dir)
	if len(got) != 3 {
		t.Errorf("files after second run = %v, want 3 entries", got)
	}
}

func TestExtractCancelled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sub, err := sgml.ParseSubmission(sgml.FromContent(sampleSubmission))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(nil).Extract(ctx, sub, dir); err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDocumentFilename(t *testing.T) {
	tests := []struct {
		name string
		doc  sgml.Document
		want string
	}{
		{"filename with extension", sgml.Document{Seq: 1, Filename: "a.txt"}, "1_a.txt"},
		{"filename sanitized", sgml.Document{Seq: 2, Filename: "ex 99/1.htm"}, "2_ex_99_1.htm"},
		{"type fallback", sgml.Document{Seq: 3, Type: "EX-99.1"}, "3_ex-99.1.txt"},
		{"bare fallback", sgml.Document{Seq: 4}, "4_document.txt"},
		{"binary without filename", sgml.Document{Seq: 5, Binary: true}, "5_document.bin"},
		{"binary keeps named extension", sgml.Document{Seq: 6, Filename: "logo.jpg", Binary: true}, "6_logo.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documentFilename(&tt.doc, map[string]bool{}); got != tt.want {
				t.Errorf("documentFilename = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocumentFilenameCollision(t *testing.T) {
	used := map[string]bool{}
	doc := sgml.Document{Seq: 1, Filename: "a.txt"}

	first := documentFilename(&doc, used)
	used[first] = true
	second := documentFilename(&doc, used)

	if first != "1_a.txt" || second != "1_a_2.txt" {
		t.Errorf("names = %q, %q", first, second)
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"simple.txt", "simple.txt"},
		{"with space.txt", "with_space.txt"},
		{"../escape.txt", ".._escape.txt"},
		{"mixed-OK_1.9.htm", "mixed-OK_1.9.htm"},
		{"weird*chars?.bin", "weird_chars_.bin"},
	}
	for _, tt := range tests {
		if got := SafeFilename(tt.in); got != tt.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
