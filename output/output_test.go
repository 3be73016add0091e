package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mbox-to-json/model"
)

func sampleDocs() []model.Document {
	return []model.Document{
		{
			Index: 0,
			Headers: []model.HeaderField{
				{Name: "Subject", Value: "Grüße"},
				{Name: "Received", Value: "hop 1"},
				{Name: "Received", Value: "hop 2"},
			},
			Body: "hello",
			Attachments: []model.AttachmentInfo{
				{ResolvedFilename: "0 a.pdf"},
				{OriginalFilename: "b.png", IsInline: true},
			},
		},
		{
			Index:   1,
			Headers: []model.HeaderField{{Name: "From", Value: "x@example.com"}, {Name: "subject", Value: "second"}},
			Body:    "line1\nline2, with comma",
		},
		model.FailedDocument(2, assert.AnError),
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleDocs()))

	var got []model.Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "Grüße", got[0].Headers[0].Value)
	assert.Equal(t, []string{"hop 1", "hop 2"}, got[0].Header("received"))
	assert.Equal(t, assert.AnError.Error(), got[2].Error)
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleDocs()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, []string{"Index", "Subject", "Received", "Received (2)", "From", "Body", "Attachments", "Error"}, records[0])
	assert.Equal(t, []string{"0", "Grüße", "hop 1", "hop 2", "", "hello", "0 a.pdf; b.png", ""}, records[1])
	assert.Equal(t, []string{"1", "second", "", "", "x@example.com", "line1\nline2, with comma", "", ""}, records[2])
	assert.Equal(t, "2", records[3][0])
	assert.Equal(t, assert.AnError.Error(), records[3][7])
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "nested", "out.json")
	require.NoError(t, WriteFile(jsonPath, "json", sampleDocs()))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	csvPath := filepath.Join(dir, "out.csv")
	require.NoError(t, WriteFile(csvPath, "csv", sampleDocs()))
	data, err = os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Index,Subject")

	err = WriteFile(filepath.Join(dir, "out.xml"), "xml", nil)
	assert.ErrorContains(t, err, "unknown output format")
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()

	out := filepath.Join(dir, "nested", "out.json")
	require.NoError(t, Prepare(out))
	assert.DirExists(t, filepath.Dir(out))
	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Empty(t, entries, "no leftover files")

	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	err = Prepare(filepath.Join(blocker, "out.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create output directory")
}
