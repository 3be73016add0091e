package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dhcgn/mbox-to-json/config"
	"github.com/dhcgn/mbox-to-json/extract"
	"github.com/dhcgn/mbox-to-json/filter"
	"github.com/dhcgn/mbox-to-json/manifest"
	"github.com/dhcgn/mbox-to-json/mbox"
	"github.com/dhcgn/mbox-to-json/output"
	"github.com/dhcgn/mbox-to-json/progress"
	"github.com/dhcgn/mbox-to-json/runner"
	"github.com/dhcgn/mbox-to-json/walker"
)

// Extract converts the archive named by cfg and writes the document table, the
// attachments and their manifests.
func Extract(ctx context.Context, cfg config.Config, logger *slog.Logger) (runner.Result, error) {
	if err := output.Prepare(cfg.OutputPath); err != nil {
		return runner.Result{}, err
	}

	store, err := mbox.Open(cfg.InputPath, logger)
	if err != nil {
		return runner.Result{}, err
	}
	defer store.Close()

	id, err := uuid.NewV7()
	if err != nil {
		return runner.Result{}, fmt.Errorf("run id: %w", err)
	}
	runID := id.String()

	x, err := extract.New(extract.Options{
		Dir:          cfg.AttachmentsDir,
		Materialize:  cfg.ExtractAttachments,
		InlineImages: !cfg.NoInlineImages,
		Sidecars:     cfg.SidecarMetadata,
		RunID:        runID,
	}, logger)
	if err != nil {
		return runner.Result{}, fmt.Errorf("extract.New: %w", err)
	}

	w, err := walker.New(walker.Options{
		MaxDepth:         cfg.MaxRecursionDepth,
		MaxPayloadBytes:  cfg.MaxPayloadBytes(),
		MaxBodyPartBytes: cfg.MaxBodyPartBytes(),
		InlineImages:     !cfg.NoInlineImages,
		SanitizeHTML:     cfg.SanitizeHTML,
		HTMLToMarkdown:   cfg.HTMLToMarkdown,
	}, x, logger)
	if err != nil {
		return runner.Result{}, fmt.Errorf("walker.New: %w", err)
	}

	opts := runner.Options{
		Workers:                cfg.Workers,
		BatchSize:              cfg.BatchSize,
		ParallelOverride:       cfg.EnableParallel,
		ParallelMinDocuments:   cfg.ParallelMinDocuments,
		ParallelMinSizeMB:      cfg.ParallelMinSizeMB,
		Start:                  cfg.Start,
		Stop:                   cfg.Stop,
		SkipAttachmentMetadata: cfg.SkipAttachmentMetadata,
		Observer:               progress.New(cfg.Progress && cfg.LogLevel == "info"),
	}

	filterOpts := filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	}
	var f *filter.Filter
	if filterOpts.Active() {
		f, err = filter.New(filterOpts)
		if err != nil {
			return runner.Result{}, fmt.Errorf("create filter: %w", err)
		}
		opts.Filter = f
	}

	sinks, closeSinks, err := openSinks(cfg, runID, logger)
	if err != nil {
		return runner.Result{}, err
	}
	defer closeSinks()
	opts.Sink = sinks

	r, err := runner.New(store, w, opts, logger)
	if err != nil {
		return runner.Result{}, fmt.Errorf("runner.New: %w", err)
	}

	res, err := r.Run(ctx)
	if err != nil {
		return res, err
	}

	if f != nil {
		logger.Info("filter summary", "rejected", f.Rejected(), "hits", f.Hits())
	}

	if err := output.WriteFile(cfg.OutputPath, cfg.Format, res.Documents); err != nil {
		return res, fmt.Errorf("write output: %w", err)
	}
	logger.Info("output written", "path", cfg.OutputPath, "format", cfg.Format, "documents", len(res.Documents))

	return res, nil
}

// openSinks opens the JSONL manifest next to materialized attachments and the
// optional SQLite index.
func openSinks(cfg config.Config, runID string, logger *slog.Logger) (manifest.Multi, func(), error) {
	var sinks manifest.Multi
	var closers []func() error

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing manifest failed", "err", err)
			}
		}
	}

	if cfg.SkipAttachmentMetadata {
		return sinks, closeAll, nil
	}

	if cfg.ExtractAttachments {
		jsonl, err := manifest.NewJSONLWriter(cfg.ManifestPath())
		if err != nil {
			return nil, closeAll, fmt.Errorf("manifest: %w", err)
		}
		sinks = append(sinks, jsonl)
		closers = append(closers, jsonl.Close)
		logger.Info("writing attachment manifest", "path", jsonl.Path())
	}

	if cfg.ManifestDB != "" {
		db, err := manifest.OpenSQLite(cfg.ManifestDB, cfg.InputPath, runID)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("manifest database: %w", err)
		}
		sinks = append(sinks, db)
		closers = append(closers, db.Close)
		logger.Info("indexing attachments", "db", cfg.ManifestDB, "runID", db.RunID())
	}

	return sinks, closeAll, nil
}
