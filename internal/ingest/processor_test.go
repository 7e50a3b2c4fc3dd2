package ingest

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"edgar-sgml-ingest-system/internal/models"
)

const sampleSubmission = `<SUBMISSION>
<ACCESSION-NUMBER>0001234567-24-000001
<TYPE>10-K
<FILING-DATE>20240215
<DOCUMENT>
<TYPE>10-K
<SEQUENCE>1
<FILENAME>main.htm
<TEXT>
annual report body
</TEXT>
</DOCUMENT>
<DOCUMENT>
<TYPE>GRAPHIC
<SEQUENCE>2
<FILENAME>logo.jpg
<TEXT>
begin 644 logo.jpg
#0V%T
end
</TEXT>
</DOCUMENT>
`

func rawFiling(content string) *models.RawFiling {
	return &models.RawFiling{
		ID:         "f-1",
		Filename:   "sub.sgml",
		ContentB64: base64.StdEncoding.EncodeToString([]byte(content)),
		Source:     "test",
		Timestamp:  time.Now(),
	}
}

func TestProcess(t *testing.T) {
	p := NewProcessor(DefaultConfig(), nil)

	filing, err := p.Process(context.Background(), rawFiling(sampleSubmission))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if filing.AccessionNumber != "0001234567-24-000001" {
		t.Errorf("accession number = %q", filing.AccessionNumber)
	}
	if filing.FormType != "10-K" {
		t.Errorf("form type = %q", filing.FormType)
	}
	if filing.FiledAs != "20240215" {
		t.Errorf("filed as = %q", filing.FiledAs)
	}
	if len(filing.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(filing.Documents))
	}
	if filing.Documents[0].Filename != "main.htm" || filing.Documents[0].Sequence != 1 {
		t.Errorf("first record = %+v", filing.Documents[0])
	}
	if !filing.Documents[1].Binary {
		t.Error("uuencoded document not marked binary")
	}
	if !strings.Contains(string(filing.Header), `"accession-number":"0001234567-24-000001"`) {
		t.Errorf("header JSON = %s", filing.Header)
	}
	if filing.Size != int64(len(sampleSubmission)) {
		t.Errorf("size = %d, want %d", filing.Size, len(sampleSubmission))
	}
}

func TestProcessTabFormatHeader(t *testing.T) {
	content := "<SEC-DOCUMENT>0000912057-05-000001.txt : 20050104\n" +
		"ACCESSION NUMBER:\t0000912057-05-000001\n" +
		"CONFORMED SUBMISSION TYPE:\t8-K\n"

	p := NewProcessor(DefaultConfig(), nil)
	filing, err := p.Process(context.Background(), rawFiling(content))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if filing.AccessionNumber != "0000912057-05-000001" {
		t.Errorf("accession number = %q", filing.AccessionNumber)
	}
	if filing.FormType != "8-K" {
		t.Errorf("form type = %q", filing.FormType)
	}
}

func TestProcessInvalidFiling(t *testing.T) {
	p := NewProcessor(DefaultConfig(), nil)

	t.Run("missing fields", func(t *testing.T) {
		if _, err := p.Process(context.Background(), &models.RawFiling{}); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("bad base64", func(t *testing.T) {
		raw := rawFiling(sampleSubmission)
		raw.ContentB64 = "!!not base64!!"
		if _, err := p.Process(context.Background(), raw); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("over size limit", func(t *testing.T) {
		small := NewProcessor(Config{MaxFileSize: 8}, nil)
		if _, err := small.Process(context.Background(), rawFiling(sampleSubmission)); err == nil {
			t.Error("expected size limit error")
		}
	})
}
