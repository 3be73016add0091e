package stats

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mbox-to-json/model"
)

func TestCollectorAddDocument(t *testing.T) {
	c := NewCollector()

	c.AddDocument(model.Document{
		Index: 0,
		Attachments: []model.AttachmentInfo{
			{AttachmentOrdinal: 1},
			{AttachmentOrdinal: 2, Truncated: true},
			{AttachmentOrdinal: 1, IsInline: true},
		},
		FailedAttachments: 1,
		Warnings:          []string{"structural limit: part depth 51 exceeds 50", "write failed"},
	})
	c.AddDocument(model.FailedDocument(1, errors.New("parse message 1: malformed header")))
	c.AddFiltered()
	c.AddBatch()

	s := c.Snapshot()
	assert.Equal(t, 3, s.Documents)
	assert.Equal(t, 1, s.Processed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Filtered)
	assert.Equal(t, 2, s.Attachments)
	assert.Equal(t, 1, s.InlineImages)
	assert.Equal(t, 1, s.TruncatedNames)
	assert.Equal(t, 1, s.AttachmentFailures)
	assert.Equal(t, 2, s.Warnings)
	assert.Equal(t, 1, s.Batches)
	require.Error(t, s.LastError)
	assert.Contains(t, s.LastError.Error(), "malformed header")
}

func TestSummaryLogAttrs(t *testing.T) {
	attrs := Summary{Documents: 2, Failed: 1}.LogAttrs()
	assert.Contains(t, attrs, "documents")
	assert.NotContains(t, attrs, "lastError")

	attrs = Summary{LastError: errors.New("x")}.LogAttrs()
	assert.Contains(t, attrs, "lastError")
}

func TestPrettyPrintTop(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrintTop(&buf, map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, "1. c (5)\n2. a (2)\n3. b (2)\n", buf.String())
}
