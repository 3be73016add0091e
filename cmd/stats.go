package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-to-json/extract"
	"github.com/dhcgn/mbox-to-json/filter"
	"github.com/dhcgn/mbox-to-json/mbox"
	"github.com/dhcgn/mbox-to-json/model"
	"github.com/dhcgn/mbox-to-json/stats"
	"github.com/dhcgn/mbox-to-json/walker"
)

var headersToTrack = []string{"Delivered-To", "Subject", "From", "To"}

type statsFlags struct {
	reportDir     string
	topN          int
	includeHeader []string
	includeBody   []string
	excludeHeader []string
	excludeBody   []string
}

// Report is the result of analysing an archive without writing attachments.
type Report struct {
	Messages     int
	Skipped      int
	Failed       int
	Parts        model.PartCounts
	Headers      map[string]map[string]int
	ContentTypes map[string]int
}

func newReport() *Report {
	r := &Report{
		Headers:      make(map[string]map[string]int),
		ContentTypes: make(map[string]int),
	}
	for _, h := range headersToTrack {
		r.Headers[h] = make(map[string]int)
	}
	return r
}

func (r *Report) add(doc model.Document) {
	r.Messages++
	if doc.Failed() {
		r.Failed++
		return
	}
	r.Parts.Body += doc.Parts.Body
	r.Parts.Attachment += doc.Parts.Attachment
	r.Parts.InlineImage += doc.Parts.InlineImage
	r.Parts.Ignored += doc.Parts.Ignored
	for _, h := range headersToTrack {
		if values := doc.Header(h); len(values) > 0 && values[0] != "" {
			r.Headers[h][values[0]]++
		}
	}
	for _, att := range doc.Attachments {
		r.ContentTypes[att.ContentType]++
	}
}

// NewStatsCommand returns the "stats" subcommand.
func NewStatsCommand() *cobra.Command {
	var fl statsFlags

	cmd := &cobra.Command{
		Use:   "stats [mbox file]",
		Short: "Analyse the mbox file and show statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Analyzing mbox file:", args[0])

			f, err := filter.New(filter.Options{
				IncludeHeader: fl.includeHeader,
				IncludeBody:   fl.includeBody,
				ExcludeHeader: fl.excludeHeader,
				ExcludeBody:   fl.excludeBody,
			})
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			report, err := Analyze(args[0], f, slog.Default(), func(r *Report) {
				if r.Messages%250 == 0 {
					// ANSI escape code to clear screen and move cursor to top-left
					fmt.Fprint(out, "\033[H\033[2J")
					printReport(out, r, f, fl.topN)
				}
			})
			if err != nil {
				return fmt.Errorf("error reading mbox file: %w", err)
			}

			printReport(out, report, f, fl.topN)

			if err := saveCSVReports(report, fl.reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			fmt.Fprintf(out, "\nReports saved to directory: %s\n", fl.reportDir)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&fl.reportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&fl.topN, "top", "t", 10, "Number of top items to display in statistics")
	flags.StringArrayVar(&fl.includeHeader, "include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&fl.includeBody, "include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&fl.excludeHeader, "exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArrayVar(&fl.excludeBody, "exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")

	return cmd
}

// Analyze walks every message of the archive at path without materializing
// attachments. onMessage, if set, is called after each counted message.
func Analyze(path string, f *filter.Filter, logger *slog.Logger, onMessage func(*Report)) (*Report, error) {
	store, err := mbox.Open(path, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	x, err := extract.New(extract.Options{InlineImages: true}, logger)
	if err != nil {
		return nil, err
	}
	w, err := walker.New(walker.Options{InlineImages: true}, x, logger)
	if err != nil {
		return nil, err
	}

	report := newReport()
	for index := 0; ; index++ {
		raw, err := store.Get(index)
		if errors.Is(err, model.ErrDocumentNotFound) {
			return report, nil
		}
		if err != nil {
			return report, err
		}
		if f != nil && !f.Allows(raw) {
			report.Skipped++
			continue
		}

		doc, err := w.Walk(raw)
		if err != nil {
			doc = model.FailedDocument(index, err, doc.Headers...)
		}
		report.add(doc)
		if onMessage != nil {
			onMessage(report)
		}
	}
}

func printReport(out io.Writer, r *Report, f *filter.Filter, topN int) {
	total := r.Messages + r.Skipped
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(r.Skipped) / float64(total) * 100
	}
	fmt.Fprintf(out, "Processed %d messages (skipped %d by filters, %.2f%%, failed %d)...\n\n", r.Messages, r.Skipped, filterPercent, r.Failed)

	if hits := f.Hits(); len(hits) > 0 {
		fmt.Fprintln(out, "Filter hits:")
		stats.PrettyPrintTop(out, hits, len(hits))
		fmt.Fprintln(out, "---")
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Parts: %d body, %d attachment, %d inline image, %d ignored\n\n",
		r.Parts.Body, r.Parts.Attachment, r.Parts.InlineImage, r.Parts.Ignored)

	fmt.Fprintf(out, "Top %d attachment content types:\n", topN)
	stats.PrettyPrintTop(out, r.ContentTypes, topN)
	fmt.Fprintln(out)

	for _, header := range headersToTrack {
		fmt.Fprintf(out, "Top %d %s:\n", topN, header)
		stats.PrettyPrintTop(out, r.Headers[header], topN)
		fmt.Fprintln(out)
	}
}

func saveCSVReports(r *Report, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	reports := map[string]map[string]int{"content_type": r.ContentTypes}
	for _, header := range headersToTrack {
		reports[normalizeHeaderName(header)] = r.Headers[header]
	}

	for name, counts := range reports {
		if err := writeCountCSV(filepath.Join(dir, fmt.Sprintf("report_%s.csv", name)), counts, limit); err != nil {
			return err
		}
	}
	return nil
}

func writeCountCSV(path string, counts map[string]int, limit int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}

	type pair struct {
		Key   string
		Value int
	}
	pairs := make([]pair, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value == pairs[j].Value {
			return pairs[i].Key < pairs[j].Key
		}
		return pairs[i].Value > pairs[j].Value
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		if err := writer.Write([]string{pairs[i].Key, strconv.Itoa(pairs[i].Value)}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
