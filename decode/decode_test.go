package decode

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_DeclaredUTF8RoundTrip(t *testing.T) {
	d := New(1024)

	got := d.Decode([]byte("héllo"), "utf-8")

	assert.Equal(t, "héllo", got)
	assert.NotContains(t, got, "[truncated")
}

func TestDecode_EmptyPayload(t *testing.T) {
	assert.Equal(t, "", New(0).Decode(nil, "utf-8"))
	assert.Equal(t, "", New(0).Decode([]byte{}))
}

func TestDecode_HintsInOrder(t *testing.T) {
	raw := []byte{'c', 'a', 'f', 0xE9}

	tests := []struct {
		name  string
		hints []string
		want  string
	}{
		{name: "windows-1252", hints: []string{"windows-1252"}, want: "café"},
		{name: "iso-8859-1 upper case", hints: []string{"ISO-8859-1"}, want: "café"},
		{name: "invalid utf-8 hint skipped", hints: []string{"utf-8", "iso-8859-15"}, want: "café"},
		{name: "unknown hint skipped", hints: []string{"x-does-not-exist", "latin1"}, want: "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(0).Decode(raw, tt.hints...))
		})
	}
}

func TestDecode_FallbackAlwaysReturnsValidText(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0xfd, 'o', 'k', 0x80}

	got := New(0).Decode(raw, "utf-8")

	assert.NotEmpty(t, got)
	assert.True(t, utf8.ValidString(got))
}

func TestDecode_ASCIIWithoutHints(t *testing.T) {
	got := New(0).Decode([]byte("plain ascii text, nothing special"), "x-bogus")
	assert.Equal(t, "plain ascii text, nothing special", got)
}

func TestDecode_PayloadLimitBoundary(t *testing.T) {
	d := New(8)

	exact := d.Decode([]byte("abcdefgh"), "utf-8")
	assert.Equal(t, "abcdefgh", exact)

	over := d.Decode([]byte("abcdefghi"), "utf-8")
	assert.Equal(t, "abcdefgh"+Marker(8), over)
}

func TestTruncateText(t *testing.T) {
	s, cut := TruncateText("ééé", 3)
	require.True(t, cut)
	assert.Equal(t, "é"+Marker(3), s)

	s, cut = TruncateText("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", s)

	s, cut = TruncateText("unlimited", 0)
	assert.False(t, cut)
	assert.Equal(t, "unlimited", s)
}

func TestLookup(t *testing.T) {
	assert.NotNil(t, Lookup("ISO-8859-2"))
	assert.NotNil(t, Lookup(`"windows-1251"`))
	assert.NotNil(t, Lookup("Shift_JIS"))
	assert.Nil(t, Lookup("definitely-not-a-charset"))
}

func TestHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "=?UTF-8?Q?Invitaci=C3=B3n?=", want: "Invitación"},
		{in: "=?iso-8859-2?Q?=B1?=", want: "ą"},
		{in: "folded\r\n value", want: "folded value"},
		{in: "=?x-unknown?Q?abc?=", want: "=?x-unknown?Q?abc?="},
		{in: "  plain  ", want: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Header(tt.in))
		})
	}
}

func TestWords_ErrorOnUnknownCharset(t *testing.T) {
	_, err := Words("=?x-unknown?B?YWJj?=")
	assert.Error(t, err)

	got, err := Words("no words here")
	require.NoError(t, err)
	assert.Equal(t, "no words here", got)
}

func BenchmarkDecode_Detect(b *testing.B) {
	raw := []byte(strings.Repeat("Gr\xfc\xdfe aus M\xfcnchen. ", 200))
	d := New(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = d.Decode(raw)
	}
}
