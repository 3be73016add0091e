package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhcgn/mbox-to-json/decode"
)

// maxExtensionLength bounds what counts as a file extension, dot included.
const maxExtensionLength = 20

var (
	forbiddenWhitespace = regexp.MustCompile("[\t\r\n\v\f]+")
	forbiddenCharacters = regexp.MustCompile(`[/\\?%*:|"<>\x00]`)
)

// PathIndex is the set of lower-cased destination paths claimed by one document.
type PathIndex map[string]struct{}

// Claimed reports whether path is already taken, ignoring case.
func (p PathIndex) Claimed(path string) bool {
	_, ok := p[normalize(path)]
	return ok
}

// Claim records path as taken.
func (p PathIndex) Claim(path string) {
	p[normalize(path)] = struct{}{}
}

func normalize(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// DecodeFilename returns the decoded declared name, or fallback when it is absent or undecodable.
func DecodeFilename(declared, fallback string) string {
	if strings.TrimSpace(declared) == "" {
		return fallback
	}
	name, err := decode.Words(declared)
	if err != nil || strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

// Sanitize makes name safe to use as a single path element.
func Sanitize(name string) string {
	name = forbiddenWhitespace.ReplaceAllString(name, " ")
	return forbiddenCharacters.ReplaceAllString(name, "_")
}

// Extension returns the suffix of name from its last dot, or "" when there is
// none or it is longer than maxExtensionLength.
func Extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "." || ext == name || len(ext) > maxExtensionLength {
		return ""
	}
	return ext
}

// Resolve picks a path for name inside dir that is not yet in claimed, claims it and returns it.
// Collisions append " attachment <ordinal>", and from the second collision on " (n)", keeping the extension.
func Resolve(dir, name string, claimed PathIndex, ordinal string) string {
	path := filepath.Join(dir, name)

	ext := Extension(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; claimed.Claimed(path); n++ {
		iteration := ""
		if n > 1 {
			iteration = fmt.Sprintf(" (%d)", n)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s attachment %s%s%s", stem, ordinal, iteration, ext))
	}

	claimed.Claim(path)
	return path
}
