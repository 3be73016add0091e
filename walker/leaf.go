package walker

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message"
)

// Leaf is the metadata of a part without children.
type Leaf struct {
	ContentType string
	Disposition string
	Filename    string
	Charset     string
}

// HasFilename reports whether the part declares a file name.
func (l Leaf) HasFilename() bool {
	return l.Filename != ""
}

var (
	filenameParam = regexp.MustCompile(`(?i)\bfilename\*?\s*=\s*"?([^";]+)"?`)
	nameParam     = regexp.MustCompile(`(?i)\bname\*?\s*=\s*"?([^";]+)"?`)
	charsetParam  = regexp.MustCompile(`(?i)\bcharset\s*=\s*"?([^";\s]+)"?`)
)

func leafOf(h message.Header) Leaf {
	contentType, ctParams, ctErr := h.ContentType()
	disposition, dispParams, dispErr := h.ContentDisposition()

	leaf := Leaf{
		ContentType: token(contentType),
		Disposition: token(disposition),
	}
	if leaf.ContentType == "" {
		leaf.ContentType = "text/plain"
	}

	leaf.Filename = strings.TrimSpace(dispParams["filename"])
	if leaf.Filename == "" && dispErr != nil {
		leaf.Filename = firstMatch(filenameParam, h.Get("Content-Disposition"))
	}
	if leaf.Filename == "" {
		leaf.Filename = strings.TrimSpace(ctParams["name"])
	}
	if leaf.Filename == "" && ctErr != nil {
		leaf.Filename = firstMatch(nameParam, h.Get("Content-Type"))
	}

	leaf.Charset = ctParams["charset"]
	if leaf.Charset == "" && ctErr != nil {
		leaf.Charset = firstMatch(charsetParam, h.Get("Content-Type"))
	}
	return leaf
}

// token returns the lower-cased value of a header before its parameters.
func token(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
