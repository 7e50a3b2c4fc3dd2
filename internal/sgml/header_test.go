package sgml

import (
	"strings"
	"testing"
)

const dashedHeader = `<SUBMISSION>
<ACCESSION-NUMBER>0001234567-24-000001
<TYPE>10-K
<PUBLIC-DOCUMENT-COUNT>3
<FILER>
<COMPANY-DATA>
<CONFORMED-NAME>ACME CORP
<CIK>0000012345
</COMPANY-DATA>
</FILER>
<FILER>
<COMPANY-DATA>
<CONFORMED-NAME>ACME SUBSIDIARY INC
<CIK>0000067890
</COMPANY-DATA>
</FILER>
`

func TestParseDashedHeader(t *testing.T) {
	buf := []byte(dashedHeader)
	h := parseHeader(buf, len(buf))

	if got := h.Text("accession-number"); got != "0001234567-24-000001" {
		t.Errorf("accession-number = %q", got)
	}
	if got := h.Text("type"); got != "10-K" {
		t.Errorf("type = %q", got)
	}

	// Repeated FILER blocks accumulate into a list of nested blocks.
	v, ok := h.Get("filer")
	if !ok {
		t.Fatal("filer key missing")
	}
	if !v.IsList() || len(v.List) != 2 {
		t.Fatalf("filer = %+v, want list of 2", v)
	}
	first := v.List[0].Nested
	if first == nil {
		t.Fatal("first filer is not nested")
	}
	company := first.Nested("company-data")
	if company == nil {
		t.Fatal("company-data missing in first filer")
	}
	if got := company.Text("conformed-name"); got != "ACME CORP" {
		t.Errorf("conformed-name = %q", got)
	}
	if got := v.List[1].Nested.Nested("company-data").Text("cik"); got != "0000067890" {
		t.Errorf("second filer cik = %q", got)
	}
}

const tabHeader = "<SEC-DOCUMENT>0000912057-05-000001.txt : 20050104\n" +
	"<SEC-HEADER>0000912057-05-000001.hdr.sgml : 20050104\n" +
	"ACCESSION NUMBER:\t\t0000912057-05-000001\n" +
	"CONFORMED SUBMISSION TYPE:\t8-K\n" +
	"FILED AS OF DATE:\t\t20050104\n" +
	"FILER:\n" +
	"\tCOMPANY DATA:\n" +
	"\t\tCOMPANY CONFORMED NAME:\tACME CORP\n" +
	"\t\tCENTRAL INDEX KEY:\t0000012345\n" +
	"\tFILING VALUES:\n" +
	"\t\tFORM TYPE:\t8-K\n"

func TestParseTabHeader(t *testing.T) {
	buf := []byte(tabHeader)
	h := parseHeader(buf, len(buf))

	if got := h.Text("accession number"); got != "0000912057-05-000001" {
		t.Errorf("accession number = %q", got)
	}
	if got := h.Text("conformed submission type"); got != "8-K" {
		t.Errorf("conformed submission type = %q", got)
	}

	filer := h.Nested("filer")
	if filer == nil {
		t.Fatal("filer block missing")
	}
	company := filer.Nested("company data")
	if company == nil {
		t.Fatal("company data block missing")
	}
	if got := company.Text("company conformed name"); got != "ACME CORP" {
		t.Errorf("company conformed name = %q", got)
	}
	// Sibling block at the same indent closes the previous one.
	values := filer.Nested("filing values")
	if values == nil {
		t.Fatal("filing values block missing")
	}
	if got := values.Text("form type"); got != "8-K" {
		t.Errorf("form type = %q", got)
	}
}

func TestParsePrivacyEnhancedHeader(t *testing.T) {
	input := "-----BEGIN PRIVACY-ENHANCED MESSAGE-----\n" +
		"Proc-Type: 2001,MIC-CLEAR\n" +
		"Originator-Name: webmaster@www.sec.gov\n" +
		"\n" +
		"<SEC-DOCUMENT>0000912057-00-000001.txt : 20000104\n" +
		"ACCESSION NUMBER:\t0000912057-00-000001\n"

	buf := []byte(input)
	h := parseHeader(buf, len(buf))

	env := h.Text("privacy-enhanced-message")
	if !strings.Contains(env, "Proc-Type: 2001,MIC-CLEAR") {
		t.Errorf("envelope not captured: %q", env)
	}
	if strings.Contains(env, "ACCESSION") {
		t.Errorf("envelope swallowed header content: %q", env)
	}
	if got := h.Text("accession number"); got != "0000912057-00-000001" {
		t.Errorf("accession number = %q", got)
	}
}

func TestUnknownPreambleFallsBackToDashed(t *testing.T) {
	// An irregular first line must degrade, not fail.
	input := "GARBAGE FIRST LINE\n<ACCESSION-NUMBER>0001-23\n"
	buf := []byte(input)
	h := parseHeader(buf, len(buf))
	if got := h.Text("accession-number"); got != "0001-23" {
		t.Errorf("accession-number = %q, want value despite odd preamble", got)
	}
}

func TestStructuralTagsDoNotNest(t *testing.T) {
	input := "<SUBMISSION>\n<ACCESSION-NUMBER>0001-23\n</SUBMISSION>\n"
	buf := []byte(input)
	h := parseHeader(buf, len(buf))

	// accession-number must land at the top level even though the
	// submission wrapper has a closing tag.
	if got := h.Text("accession-number"); got != "0001-23" {
		t.Errorf("accession-number = %q", got)
	}
	if h.Nested("submission") != nil {
		t.Error("submission wrapper must not become a nested block")
	}
}
