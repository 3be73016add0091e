package progress

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mbox-to-json/stats"
)

// Bar shows a pterm progress bar advanced at every batch barrier.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	done    int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar. A disabled bar ignores every call.
func New(enabled bool) *Bar {
	return &Bar{enabled: enabled}
}

// Started starts the bar for total documents.
func (b *Bar) Started(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = total
	if !b.enabled || total <= 0 {
		return
	}

	pterm.Info.Printf("Documents to process: %d\n", total)
	pterm.Println()

	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Extracting messages").
		Start()
	if err != nil {
		return
	}
	b.pb = pb
}

// Flushed advances the bar by the documents of one batch.
func (b *Bar) Flushed(count int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done += count
	if b.pb == nil {
		return
	}
	b.pb.Add(count)
}

// Finished stops the bar.
func (b *Bar) Finished() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}
	b.pb.Stop()
	b.pb = nil
	pterm.Success.Println("Extraction complete!")
}

// Done returns the number of documents flushed so far.
func (b *Bar) Done() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// PrintSummary prints the final run statistics.
func PrintSummary(summary stats.Summary) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", summary.Duration)
	pterm.Info.Printf("Total documents: %d\n", summary.Documents)
	pterm.Info.Printf("Processed: %d\n", summary.Processed)
	pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	pterm.Info.Printf("Attachments: %d\n", summary.Attachments)
	pterm.Info.Printf("Inline images: %d\n", summary.InlineImages)
	if summary.TruncatedNames > 0 {
		pterm.Warning.Printf("Shortened file names: %d\n", summary.TruncatedNames)
	}
	if summary.AttachmentFailures > 0 {
		pterm.Warning.Printf("Attachment failures: %d\n", summary.AttachmentFailures)
	}
	if summary.Failed > 0 {
		pterm.Error.Printf("Failed documents: %d\n", summary.Failed)
	}
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}
