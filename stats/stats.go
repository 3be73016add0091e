package stats

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dhcgn/mbox-to-json/model"
)

type Summary struct {
	Documents          int
	Processed          int
	Failed             int
	Filtered           int
	Attachments        int
	InlineImages       int
	AttachmentFailures int
	TruncatedNames     int
	Warnings           int
	Batches            int
	Duration           time.Duration
	LastError          error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"documents", s.Documents,
		"processed", s.Processed,
		"failed", s.Failed,
		"filtered", s.Filtered,
		"attachments", s.Attachments,
		"inlineImages", s.InlineImages,
		"attachmentFailures", s.AttachmentFailures,
		"truncatedNames", s.TruncatedNames,
		"warnings", s.Warnings,
		"batches", s.Batches,
	}
	if s.Duration > 0 {
		attrs = append(attrs, "duration", s.Duration)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector accumulates a Summary. It is fed by the orchestrator after each batch barrier.
type Collector struct {
	mu      sync.Mutex
	summary Summary
	started time.Time
}

func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

// AddDocument counts one flushed document, successful or not.
func (c *Collector) AddDocument(doc model.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summary.Documents++
	if doc.Failed() {
		c.summary.Failed++
		c.summary.LastError = errors.New(doc.Error)
		return
	}
	c.summary.Processed++
	for _, att := range doc.Attachments {
		if att.IsInline {
			c.summary.InlineImages++
		} else {
			c.summary.Attachments++
		}
		if att.Truncated {
			c.summary.TruncatedNames++
		}
	}
	c.summary.AttachmentFailures += doc.FailedAttachments
	c.summary.Warnings += len(doc.Warnings)
}

// AddFiltered counts a document that consumed an index but was not processed.
func (c *Collector) AddFiltered() {
	c.mu.Lock()
	c.summary.Documents++
	c.summary.Filtered++
	c.mu.Unlock()
}

func (c *Collector) AddBatch() {
	c.mu.Lock()
	c.summary.Batches++
	c.mu.Unlock()
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	summary.Duration = time.Since(c.started)
	c.mu.Unlock()
	return summary
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value == pairs[j].Value {
			return pairs[i].Key < pairs[j].Key
		}
		return pairs[i].Value > pairs[j].Value
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
