package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mbox-to-json/model"
)

func raw(header, body string) model.RawDocument {
	return model.RawDocument{Raw: []byte(header + "\n\n" + body)}
}

func TestFilter_Allows(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		doc  model.RawDocument
		want bool
	}{
		{
			name: "no filters",
			doc:  raw("Subject: Any Message", "Any body content"),
			want: true,
		},
		{
			name: "include header matches",
			opts: Options{IncludeHeader: []string{"Subject: Test"}},
			doc:  raw("Subject: Test Message\nFrom: sender@example.com", "body"),
			want: true,
		},
		{
			name: "include header misses",
			opts: Options{IncludeHeader: []string{"Subject: Test"}},
			doc:  raw("Subject: Other\nFrom: sender@example.com", "body"),
			want: false,
		},
		{
			name: "include header does not look at body",
			opts: Options{IncludeHeader: []string{"Subject: Test"}},
			doc:  raw("Subject: Other", "Subject: Test"),
			want: false,
		},
		{
			name: "include body matches",
			opts: Options{IncludeBody: []string{"important"}},
			doc:  raw("Subject: Message", "This is an important message"),
			want: true,
		},
		{
			name: "include header or body",
			opts: Options{IncludeHeader: []string{"^From: boss"}, IncludeBody: []string{"invoice"}},
			doc:  raw("From: someone", "your invoice"),
			want: true,
		},
		{
			name: "exclude header matches",
			opts: Options{ExcludeHeader: []string{"spam"}},
			doc:  raw("Subject: This is spam", "body"),
			want: false,
		},
		{
			name: "exclude header misses",
			opts: Options{ExcludeHeader: []string{"spam"}},
			doc:  raw("Subject: Normal Message", "body"),
			want: true,
		},
		{
			name: "exclude body matches",
			opts: Options{ExcludeBody: []string{"unsubscribe"}},
			doc:  raw("Subject: News", "click to unsubscribe"),
			want: false,
		},
		{
			name: "blank patterns are ignored",
			opts: Options{IncludeHeader: []string{"  ", ""}},
			doc:  raw("Subject: x", "y"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Allows(tt.doc))
		})
	}
}

func TestFilter_MutuallyExclusive(t *testing.T) {
	_, err := New(Options{IncludeHeader: []string{"test"}, ExcludeBody: []string{"spam"}})
	assert.ErrorIs(t, err, ErrMutuallyExclusive)
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := New(Options{ExcludeHeader: []string{"("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exclude-header")
}

func TestFilter_HitsAndRejected(t *testing.T) {
	f, err := New(Options{ExcludeHeader: []string{"spam", "promo"}})
	require.NoError(t, err)

	f.Allows(raw("Subject: spam", ""))
	f.Allows(raw("Subject: spam again", ""))
	f.Allows(raw("Subject: promo", ""))
	f.Allows(raw("Subject: hello", ""))

	assert.Equal(t, map[string]int{"spam": 2, "promo": 1}, f.Hits())
	assert.Equal(t, 3, f.Rejected())
}

func TestOptions_Active(t *testing.T) {
	assert.False(t, Options{}.Active())
	assert.True(t, Options{ExcludeBody: []string{"x"}}.Active())
}

func TestSplitRawMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantHeader string
		wantBody   string
	}{
		{"CRLF separator", "Header: value\r\n\r\nBody content", "Header: value", "Body content"},
		{"LF separator", "Header: value\n\nBody content", "Header: value", "Body content"},
		{"earliest separator wins", "Header: value\n\nBody\r\n\r\nmore", "Header: value", "Body\r\n\r\nmore"},
		{"no separator", "All header content", "All header content", ""},
		{"empty message", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotHeader, gotBody := SplitRawMessage([]byte(tt.raw))
			assert.Equal(t, tt.wantHeader, string(gotHeader))
			assert.Equal(t, tt.wantBody, string(gotBody))
		})
	}
}
