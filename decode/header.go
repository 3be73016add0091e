package decode

import (
	"fmt"
	"io"
	"mime"
	"strings"
)

var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, r io.Reader) (io.Reader, error) {
		enc := Lookup(charset)
		if enc == nil {
			return nil, fmt.Errorf("unknown charset %q", charset)
		}
		return enc.NewDecoder().Reader(r), nil
	},
}

// Words decodes RFC 2047 encoded words in s.
func Words(s string) (string, error) {
	if !strings.Contains(s, "=?") {
		return s, nil
	}
	return wordDecoder.DecodeHeader(s)
}

// Header unfolds a raw header value and decodes its encoded words.
// Values that fail to decode are returned unfolded but otherwise untouched.
func Header(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "")
	value = strings.ReplaceAll(value, "\n", "")
	decoded, err := Words(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}
