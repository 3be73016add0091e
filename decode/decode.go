// Package decode turns raw part payloads and encoded header words into UTF-8 text.
//
// Decoding never fails: declared charsets are tried first, then a statistical
// guess, then UTF-8 with replacement characters.
package decode

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// minConfidence is the lowest chardet score accepted before falling back to UTF-8.
const minConfidence = 10

// Decoder converts payload bytes to text. The zero value decodes without a size limit.
type Decoder struct {
	// MaxPayloadBytes caps the input considered for detection and decoding; 0 disables the cap.
	MaxPayloadBytes int64
}

// New returns a Decoder truncating payloads above maxPayloadBytes.
func New(maxPayloadBytes int64) *Decoder {
	return &Decoder{MaxPayloadBytes: maxPayloadBytes}
}

// Decode returns the best-effort text for raw, trying the charset hints in order.
func (d *Decoder) Decode(raw []byte, hints ...string) string {
	if len(raw) == 0 {
		return ""
	}

	truncated := false
	if d != nil && d.MaxPayloadBytes > 0 && int64(len(raw)) > d.MaxPayloadBytes {
		raw = raw[:d.MaxPayloadBytes]
		truncated = true
	}

	text := decode(raw, hints)
	if truncated {
		text += Marker(d.MaxPayloadBytes)
	}
	return text
}

// Marker is the visible suffix appended to text cut at limit bytes.
func Marker(limit int64) string {
	return fmt.Sprintf("\n[truncated: payload exceeds %d bytes]", limit)
}

// TruncateText cuts s to at most limit bytes on a rune boundary and appends Marker.
// It reports whether s was cut. A limit of 0 disables truncation.
func TruncateText(s string, limit int64) (string, bool) {
	if limit <= 0 || int64(len(s)) <= limit {
		return s, false
	}
	cut := int(limit)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + Marker(limit), true
}

func decode(raw []byte, hints []string) string {
	for _, hint := range hints {
		if text, ok := decodeAs(raw, hint); ok {
			return text
		}
	}

	if isASCII(raw) {
		return string(raw)
	}

	if guess, err := chardet.NewTextDetector().DetectBest(raw); err == nil && guess.Confidence >= minConfidence {
		if text, ok := decodeAs(raw, guess.Charset); ok {
			return text
		}
	}

	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

func isASCII(raw []byte) bool {
	for _, b := range raw {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func decodeAs(raw []byte, charset string) (string, bool) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" {
		return "", false
	}
	if isUTF8(charset) {
		if utf8.Valid(raw) {
			return string(raw), true
		}
		return "", false
	}

	enc := Lookup(charset)
	if enc == nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func isUTF8(charset string) bool {
	switch charset {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// aliases covers labels seen in mail archives that the indexes resolve differently or not at all.
var aliases = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"cp850":        charmap.CodePage850,
}

// Lookup resolves a charset label to an encoding, or nil when it is unknown.
func Lookup(charset string) encoding.Encoding {
	charset = strings.ToLower(strings.Trim(strings.TrimSpace(charset), `"'`))
	if enc, ok := aliases[charset]; ok {
		return enc
	}
	if enc, err := ianaindex.MIME.Encoding(charset); err == nil && enc != nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(charset); err == nil && enc != nil {
		return enc
	}
	if enc, err := htmlindex.Get(charset); err == nil && enc != nil {
		return enc
	}
	return nil
}
