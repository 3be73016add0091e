// Package output serializes flattened documents as a JSON array or a CSV table.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhcgn/mbox-to-json/model"
)

// Prepare creates the directory of path and checks that a file can be written
// there, so an unusable destination fails before any document is read.
func Prepare(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".mbox-to-json-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

// WriteFile writes docs to path in the given format ("json" or "csv").
func WriteFile(path, format string, docs []model.Document) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	switch format {
	case "csv":
		return WriteCSV(file, docs)
	case "json":
		return WriteJSON(file, docs)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// WriteJSON writes docs as one indented JSON array, in the given order.
func WriteJSON(w io.Writer, docs []model.Document) error {
	if docs == nil {
		docs = []model.Document{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	return nil
}

// WriteCSV writes one row per document. Header columns appear in first-seen order;
// the n-th occurrence of a repeated field goes to a column suffixed " (n)".
func WriteCSV(w io.Writer, docs []model.Document) error {
	columns, rows := table(docs)

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func table(docs []model.Document) ([]string, [][]string) {
	var headerCols []string
	position := map[string]int{}

	keyed := make([]map[string]string, len(docs))
	for i, doc := range docs {
		values := map[string]string{}
		seen := map[string]int{}
		for _, f := range doc.Headers {
			lower := strings.ToLower(f.Name)
			seen[lower]++
			key, name := lower, f.Name
			if n := seen[lower]; n > 1 {
				key = lower + " (" + strconv.Itoa(n) + ")"
				name = f.Name + " (" + strconv.Itoa(n) + ")"
			}
			if _, ok := position[key]; !ok {
				position[key] = len(headerCols)
				headerCols = append(headerCols, name)
			}
			values[key] = f.Value
		}
		keyed[i] = values
	}

	keys := make([]string, len(headerCols))
	for key, pos := range position {
		keys[pos] = key
	}

	columns := append([]string{"Index"}, headerCols...)
	columns = append(columns, "Body", "Attachments", "Error")

	rows := make([][]string, 0, len(docs))
	for i, doc := range docs {
		row := make([]string, 0, len(columns))
		row = append(row, strconv.Itoa(doc.Index))
		for _, key := range keys {
			row = append(row, keyed[i][key])
		}
		row = append(row, doc.Body, attachmentNames(doc.Attachments), doc.Error)
		rows = append(rows, row)
	}
	return columns, rows
}

func attachmentNames(atts []model.AttachmentInfo) string {
	names := make([]string, 0, len(atts))
	for _, a := range atts {
		name := a.ResolvedFilename
		if name == "" {
			name = a.OriginalFilename
		}
		names = append(names, name)
	}
	return strings.Join(names, "; ")
}
