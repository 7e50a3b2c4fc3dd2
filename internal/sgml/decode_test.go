package sgml

import (
	"strings"
	"testing"
)

func TestUUDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			"single line",
			"begin 644 cat.txt\n#0V%T\n`\nend\n",
			"Cat",
		},
		{
			"length byte larger than data",
			// Broken encoders overstate the line length; decode what is there.
			"begin 644 out.txt\nM5&AE('1E<W0N\nend\n",
			"The test.",
		},
		{
			"truncated trailing group",
			"begin 644 out.txt\n\"04(\nend\n",
			"AB",
		},
		{
			"no end marker",
			"begin 644 out.txt\n#0V%T\n",
			"Cat",
		},
	}

	var dec UUDecoder
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dec.Decode([]byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Decode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUUDecodeNoBeginLine(t *testing.T) {
	var dec UUDecoder
	if _, err := dec.Decode([]byte("#0V%T\nend\n")); err == nil {
		t.Error("expected error for payload without begin line")
	}
}

func TestStripEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{
			"pdf envelope",
			"<PDF>\n%PDF-1.4 data\n</PDF>\n",
			"%PDF-1.4 data\n",
			true,
		},
		{
			"xml envelope",
			"<XML>\n<root/>\n</XML>",
			"<root/>\n",
			true,
		},
		{
			"xbrl envelope",
			"<XBRL>\n<xbrl:data/>\n</XBRL>\n",
			"<xbrl:data/>\n",
			true,
		},
		{
			"no envelope",
			"plain content\n",
			"plain content\n",
			false,
		},
		{
			"envelope tag mid-content is not an envelope",
			"intro\n<PDF>\nnot wrapped\n",
			"intro\n<PDF>\nnot wrapped\n",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stripEnvelope([]byte(tt.body))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if string(got) != tt.want {
				t.Errorf("inner = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecoderRegistry(t *testing.T) {
	r := NewDecoderRegistry()

	if _, err := r.Get("uuencode"); err != nil {
		t.Errorf("uuencode not registered: %v", err)
	}
	if _, err := r.Get("UUENCODE"); err != nil {
		t.Errorf("lookup should be case-insensitive: %v", err)
	}
	if _, err := r.Get("base85"); err == nil {
		t.Error("expected error for unregistered encoding")
	}

	encs := strings.Join(r.Encodings(), ",")
	if !strings.Contains(encs, "uuencode") || !strings.Contains(encs, "uu") {
		t.Errorf("Encodings = %q", encs)
	}
}

func TestMaterializeCorruptUUFallsBack(t *testing.T) {
	// materialize keeps the raw payload when decoding cannot proceed.
	// The shortest failure mode is a begin header with no line break.
	input := "<DOCUMENT>\n<TEXT>\nbegin 644 broken.bin"
	doc, buf := segmentFirst(t, input)
	got := string(materialize(buf, doc))
	if got != "begin 644 broken.bin" {
		t.Errorf("materialize = %q, want raw payload", got)
	}
}

func TestMaterializeEnvelopeAndDecode(t *testing.T) {
	input := "<DOCUMENT>\n<TEXT>\n<PDF>\nbegin 644 doc.pdf\n#0V%T\nend\n</PDF>\n</TEXT>\n</DOCUMENT>\n"
	doc, buf := segmentFirst(t, input)
	if got := string(materialize(buf, doc)); got != "Cat" {
		t.Errorf("materialize = %q, want %q", got, "Cat")
	}
}
