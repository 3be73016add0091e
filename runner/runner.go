// Package runner drives the walker over a message store in batches, on a bounded
// worker pool, restoring store order after every batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/dhcgn/mbox-to-json/manifest"
	"github.com/dhcgn/mbox-to-json/model"
	"github.com/dhcgn/mbox-to-json/stats"
)

const (
	DefaultBatchSize            = 100
	DefaultParallelMinDocuments = 1000
	DefaultParallelMinSizeMB    = 200
)

var (
	ErrNoStore     = errors.New("runner needs a store")
	ErrNoProcessor = errors.New("runner needs a processor")
	ErrBadWindow   = errors.New("stop index must be greater than start index")
)

// Store is an ordered, countable source of raw documents.
type Store interface {
	Len() (int, error)
	Size() int64
	// Get returns model.ErrDocumentNotFound past the end of the store.
	Get(index int) (model.RawDocument, error)
}

// Processor turns one raw document into its flattened record. It must be safe
// for concurrent use.
type Processor interface {
	Walk(raw model.RawDocument) (model.Document, error)
}

// Filter decides whether a document is processed. Filtered documents still consume their index.
type Filter interface {
	Allows(raw model.RawDocument) bool
}

// Observer is told about progress from the orchestrating goroutine only.
type Observer interface {
	Started(total int)
	Flushed(count int)
	Finished()
}

type Options struct {
	Workers              int
	BatchSize            int
	ParallelOverride     bool
	ParallelMinDocuments int
	ParallelMinSizeMB    int64
	// Start is the first index processed; Stop is exclusive and 0 means the end of the store.
	Start int
	Stop  int
	// SkipAttachmentMetadata keeps extracted files but leaves the manifest empty.
	SkipAttachmentMetadata bool

	Filter   Filter
	Sink     manifest.Sink
	Observer Observer
}

type Result struct {
	Documents []model.Document
	Manifest  []model.AttachmentInfo
	Summary   stats.Summary
	Failed    int
	Parallel  bool
	Workers   int
}

func (res *Result) snapshot(collector *stats.Collector) {
	res.Summary = collector.Snapshot()
	res.Failed = res.Summary.Failed
}

type Runner struct {
	store     Store
	processor Processor
	opts      Options
	logger    *slog.Logger
}

func New(store Store, processor Processor, opts Options, logger *slog.Logger) (*Runner, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if processor == nil {
		return nil, ErrNoProcessor
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ParallelMinDocuments <= 0 {
		opts.ParallelMinDocuments = DefaultParallelMinDocuments
	}
	if opts.ParallelMinSizeMB <= 0 {
		opts.ParallelMinSizeMB = DefaultParallelMinSizeMB
	}
	if opts.Start < 0 {
		opts.Start = 0
	}
	if opts.Stop != 0 && opts.Stop <= opts.Start {
		return nil, fmt.Errorf("%w: start=%d stop=%d", ErrBadWindow, opts.Start, opts.Stop)
	}
	if opts.Sink == nil {
		opts.Sink = manifest.Discard
	}

	return &Runner{store: store, processor: processor, opts: opts, logger: logger}, nil
}

type job struct {
	slot int
	raw  model.RawDocument
}

type outcome struct {
	slot int
	doc  model.Document
}

// Run processes the configured window. Per-document failures are recorded in the
// returned documents; an error is returned only for store, sink or context failures.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	collector := stats.NewCollector()

	count, err := r.store.Len()
	if err != nil {
		return Result{}, fmt.Errorf("store length: %w", err)
	}

	stop := count
	if r.opts.Stop > 0 && r.opts.Stop < stop {
		stop = r.opts.Stop
	}
	remaining := stop - r.opts.Start
	if remaining < 0 {
		remaining = 0
	}

	parallel := r.parallel(count)
	workers := 1
	if parallel {
		workers = min(r.opts.Workers, runtime.NumCPU(), max(remaining, 1))
	}

	r.logger.Info("starting extraction",
		"documents", count,
		"window", remaining,
		"sizeBytes", r.store.Size(),
		"parallel", parallel,
		"workers", workers,
		"batchSize", r.opts.BatchSize,
	)

	res := Result{Parallel: parallel, Workers: workers}
	if r.opts.Observer != nil {
		r.opts.Observer.Started(remaining)
		defer r.opts.Observer.Finished()
	}

	for batchStart := r.opts.Start; batchStart < stop; batchStart += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			res.snapshot(collector)
			return res, fmt.Errorf("run interrupted at index %d: %w", batchStart, err)
		}

		batchEnd := min(batchStart+r.opts.BatchSize, stop)
		docs, exhausted, err := r.runBatch(batchStart, batchEnd, workers, collector)
		if err != nil {
			res.snapshot(collector)
			return res, err
		}

		if err := r.flush(&res, docs, collector); err != nil {
			res.snapshot(collector)
			return res, err
		}
		collector.AddBatch()

		r.logger.Debug("batch flushed", "start", batchStart, "end", batchEnd, "documents", len(docs))
		if r.opts.Observer != nil {
			r.opts.Observer.Flushed(len(docs))
		}

		runtime.GC()
		debug.FreeOSMemory()

		if exhausted {
			r.logger.Info("whole mbox processed", "lastIndex", batchStart+len(docs)-1)
			break
		}
	}

	res.snapshot(collector)
	r.logger.Info("extraction finished", res.Summary.LogAttrs()...)
	return res, nil
}

func (r *Runner) parallel(count int) bool {
	if r.opts.Workers <= 1 {
		return false
	}
	if r.opts.ParallelOverride {
		return true
	}
	sizeMB := r.store.Size() / (1024 * 1024)
	return count >= r.opts.ParallelMinDocuments && sizeMB >= r.opts.ParallelMinSizeMB
}

// runBatch reads documents [start, end) sequentially, dispatches the unfiltered
// ones and waits for all of them. Slots of filtered documents stay nil.
func (r *Runner) runBatch(start, end, workers int, collector *stats.Collector) ([]*model.Document, bool, error) {
	slots := make([]*model.Document, end-start)
	var pending []job
	exhausted := false

	for index := start; index < end; index++ {
		raw, err := r.store.Get(index)
		if errors.Is(err, model.ErrDocumentNotFound) {
			slots = slots[:index-start]
			exhausted = true
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("read document %d: %w", index, err)
		}
		if r.opts.Filter != nil && !r.opts.Filter.Allows(raw) {
			r.logger.Debug("document filtered", "index", index)
			collector.AddFiltered()
			continue
		}
		pending = append(pending, job{slot: index - start, raw: raw})
	}

	if len(pending) == 0 {
		return slots, exhausted, nil
	}

	poolSize := min(workers, len(pending))
	jobs := make(chan job, poolSize*2)
	results := make(chan outcome, poolSize*2)

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go r.worker(jobs, results, &wg)
	}

	go func() {
		for _, j := range pending {
			jobs <- j
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for out := range results {
		doc := out.doc
		slots[out.slot] = &doc
	}

	return slots, exhausted, nil
}

func (r *Runner) worker(jobs <-chan job, results chan<- outcome, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		results <- outcome{slot: j.slot, doc: r.process(j.raw)}
	}
}

// process isolates one document: an error or a panic becomes an error marker.
func (r *Runner) process(raw model.RawDocument) (doc model.Document) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("document processing panicked", "index", raw.Index, "panic", rec)
			doc = model.FailedDocument(raw.Index, fmt.Errorf("panic: %v", rec))
		}
	}()

	doc, err := r.processor.Walk(raw)
	if err != nil {
		r.logger.Error("document processing failed", "index", raw.Index, "err", err)
		return model.FailedDocument(raw.Index, err, doc.Headers...)
	}
	doc.Index = raw.Index
	return doc
}

func (r *Runner) flush(res *Result, slots []*model.Document, collector *stats.Collector) error {
	var batchManifest []model.AttachmentInfo
	for _, doc := range slots {
		if doc == nil {
			continue
		}
		res.Documents = append(res.Documents, *doc)
		collector.AddDocument(*doc)
		if !r.opts.SkipAttachmentMetadata {
			batchManifest = append(batchManifest, doc.Attachments...)
		}
	}

	if len(batchManifest) == 0 {
		return nil
	}
	if err := r.opts.Sink.Append(batchManifest); err != nil {
		return fmt.Errorf("manifest sink: %w", err)
	}
	res.Manifest = append(res.Manifest, batchManifest...)
	return nil
}
