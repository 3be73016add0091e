// Package filter selects which raw messages of an archive are processed, using
// regular expressions over the header block and the body.
package filter

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dhcgn/mbox-to-json/model"
)

var ErrMutuallyExclusive = errors.New("include and exclude filters are mutually exclusive")

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Active reports whether any pattern is configured.
func (o Options) Active() bool {
	return len(o.IncludeHeader)+len(o.IncludeBody)+len(o.ExcludeHeader)+len(o.ExcludeBody) > 0
}

type pattern struct {
	source string
	re     *regexp.Regexp
}

// Filter holds compiled patterns. It is safe for concurrent use.
type Filter struct {
	includeMode   bool
	includeHeader []pattern
	includeBody   []pattern
	excludeHeader []pattern
	excludeBody   []pattern

	mu       sync.Mutex
	hits     map[string]int
	rejected int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, ErrMutuallyExclusive
	}

	return &Filter{
		includeMode:   includeActive,
		includeHeader: includeHeader,
		includeBody:   includeBody,
		excludeHeader: excludeHeader,
		excludeBody:   excludeBody,
		hits:          make(map[string]int),
	}, nil
}

// Allows reports whether the document passes the filter. Include mode keeps
// documents matching any include pattern; exclude mode drops documents matching
// any exclude pattern.
func (f *Filter) Allows(doc model.RawDocument) bool {
	header, body := SplitRawMessage(doc.Raw)

	var allowed bool
	var matched string
	if f.includeMode {
		matched = firstMatch(f.includeHeader, header)
		if matched == "" {
			matched = firstMatch(f.includeBody, body)
		}
		allowed = matched != ""
	} else {
		matched = firstMatch(f.excludeHeader, header)
		if matched == "" {
			matched = firstMatch(f.excludeBody, body)
		}
		allowed = matched == ""
	}

	f.mu.Lock()
	if matched != "" {
		f.hits[matched]++
	}
	if !allowed {
		f.rejected++
	}
	f.mu.Unlock()

	return allowed
}

// Hits returns how many documents each pattern decided, keyed by pattern source.
func (f *Filter) Hits() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.hits))
	for k, v := range f.hits {
		out[k] = v
	}
	return out
}

// Rejected returns the number of documents filtered out so far.
func (f *Filter) Rejected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejected
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[:crlf], raw[crlf+4:]
	case lf >= 0:
		return raw[:lf], raw[lf+2:]
	}

	return raw, nil
}

func compilePatterns(sources []string) ([]pattern, error) {
	compiled := make([]pattern, 0, len(sources))
	for _, source := range sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		re, err := regexp.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", source, err)
		}
		compiled = append(compiled, pattern{source: source, re: re})
	}
	return compiled, nil
}

func firstMatch(patterns []pattern, text []byte) string {
	for _, p := range patterns {
		if p.re.Match(text) {
			return p.source
		}
	}
	return ""
}
