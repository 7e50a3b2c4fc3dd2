package sgml

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Decoder turns an encoded payload into its decoded bytes. Implementations
// declare the encoding names they handle; the registry resolves them from
// the detected payload encoding. Adding an encoding is a new Decoder
// registration, not a change to Document.
type Decoder interface {
	Decode(payload []byte) ([]byte, error)
	Encodings() []string
}

// DecoderRegistry stores decoders by (lowercased) encoding name.
type DecoderRegistry struct {
	decoders map[string]Decoder
}

// NewDecoderRegistry creates a registry with the built-in decoders.
func NewDecoderRegistry() *DecoderRegistry {
	r := &DecoderRegistry{decoders: make(map[string]Decoder)}
	r.Register(UUDecoder{})
	return r
}

// Register adds a decoder for all of its encodings. Later registrations
// for the same encoding overwrite earlier ones.
func (r *DecoderRegistry) Register(d Decoder) {
	for _, enc := range d.Encodings() {
		r.decoders[strings.ToLower(enc)] = d
	}
}

// Get returns the decoder for the given encoding (case-insensitive).
func (r *DecoderRegistry) Get(encoding string) (Decoder, error) {
	if d, ok := r.decoders[strings.ToLower(encoding)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no decoder registered for encoding: %s", encoding)
}

// Encodings returns a sorted list of registered encodings.
func (r *DecoderRegistry) Encodings() []string {
	encs := make([]string, 0, len(r.decoders))
	for e := range r.decoders {
		encs = append(encs, e)
	}
	sort.Strings(encs)
	return encs
}

var defaultDecoders = NewDecoderRegistry()

// envelope tags wrap non-SGML content inside <TEXT> blocks. The segmenter
// keeps them opaque; materialization strips the envelope lines only.
var envelopeTags = []string{"PDF", "XBRL", "XML"}

// stripEnvelope removes a leading <PDF>/<XBRL>/<XML> wrapper line and its
// matching trailer. The wrapped content is returned untouched; parsing it
// is out of scope. ok reports whether an envelope was found.
func stripEnvelope(body []byte) (inner []byte, ok bool) {
	for _, name := range envelopeTags {
		open := "<" + name + ">"
		firstEnd := bytes.IndexByte(body, '\n')
		if firstEnd < 0 {
			firstEnd = len(body)
		}
		if string(bytes.TrimSpace(body[:firstEnd])) != open {
			continue
		}
		inner = body[min(firstEnd+1, len(body)):]
		closeTag := []byte("</" + name + ">")
		if i := bytes.LastIndex(inner, closeTag); i >= 0 {
			lineStart := bytes.LastIndexByte(inner[:i], '\n')
			if len(bytes.TrimSpace(inner[lineStart+1:i])) == 0 {
				inner = inner[:lineStart+1]
			} else {
				inner = inner[:i]
			}
		}
		return inner, true
	}
	return body, false
}

// hasUUHeader reports whether the body opens with a uuencode begin line.
func hasUUHeader(body []byte) bool {
	return bytes.HasPrefix(body, []byte("begin"))
}

// materialize copies a document's payload out of the submission buffer,
// stripping format envelopes and decoding the payload encoding. A decode
// failure is downgraded to the raw payload with a warning: a single
// corrupt exhibit must not sink the submission.
func materialize(buf []byte, doc *Document) []byte {
	body := trimLeadingSpace(doc.Payload.Slice(buf))
	body, _ = stripEnvelope(body)
	if !hasUUHeader(body) {
		out := make([]byte, len(body))
		copy(out, body)
		return out
	}

	dec, err := defaultDecoders.Get("uuencode")
	if err == nil {
		var decoded []byte
		decoded, err = dec.Decode(body)
		if err == nil {
			return decoded
		}
	}
	plog.WithError(err).WithFields(map[string]interface{}{
		"sequence": doc.Seq,
		"filename": doc.Filename,
	}).Warn("payload decode failed, keeping raw bytes")
	out := make([]byte, len(body))
	copy(out, body)
	return out
}

// UUDecoder decodes the uuencode format used for binary exhibits
// (GRAPHIC, ZIP, some PDFs) in older filings. It is deliberately lenient:
// decades of filings were produced by broken encoders that emit short
// lines, so each line is decoded as far as its bytes go instead of being
// rejected.
type UUDecoder struct{}

// Encodings returns the encoding names handled by UUDecoder.
func (UUDecoder) Encodings() []string { return []string{"uuencode", "uu"} }

// Decode decodes everything between the begin line and the end marker.
func (UUDecoder) Decode(payload []byte) ([]byte, error) {
	body, ok := skipBeginLine(payload)
	if !ok {
		return nil, fmt.Errorf("uudecode: no begin line")
	}

	out := make([]byte, 0, len(body)/4*3)
	for len(body) > 0 {
		var line []byte
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			line, body = body[:i], body[i+1:]
		} else {
			line, body = body, nil
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if string(line) == "end" {
			break
		}
		out = appendUULine(out, line)
	}
	return out, nil
}

// skipBeginLine positions past the "begin <mode> <name>" line.
func skipBeginLine(payload []byte) ([]byte, bool) {
	i := bytes.Index(payload, []byte("begin"))
	if i < 0 {
		return nil, false
	}
	nl := bytes.IndexByte(payload[i:], '\n')
	if nl < 0 {
		return nil, false
	}
	return payload[i+nl+1:], true
}

// appendUULine decodes one uuencoded line onto out. The first byte encodes
// the decoded length; groups of four characters decode to three bytes.
// Truncated trailing groups are decoded partially.
func appendUULine(out, line []byte) []byte {
	nbytes := int((line[0] - ' ') & 0x3F)
	if nbytes == 0 {
		return out
	}

	want := len(out) + nbytes
	for i := 1; i+3 < len(line) && len(out) < want; i += 4 {
		c1 := (line[i] - ' ') & 0x3F
		c2 := (line[i+1] - ' ') & 0x3F
		c3 := (line[i+2] - ' ') & 0x3F
		c4 := (line[i+3] - ' ') & 0x3F

		out = append(out, c1<<2|c2>>4)
		if len(out) < want {
			out = append(out, c2<<4|c3>>2)
		}
		if len(out) < want {
			out = append(out, c3<<6|c4)
		}
	}

	// Broken-encoder workaround: a line may end with an incomplete group.
	i := 1 + 4*((len(line)-1)/4)
	if rem := (len(line) - 1) % 4; rem >= 2 && len(out) < want {
		c1 := (line[i] - ' ') & 0x3F
		c2 := (line[i+1] - ' ') & 0x3F
		out = append(out, c1<<2|c2>>4)
		if rem == 3 && len(out) < want {
			c3 := (line[i+2] - ' ') & 0x3F
			out = append(out, c2<<4|c3>>2)
		}
	}
	return out
}
