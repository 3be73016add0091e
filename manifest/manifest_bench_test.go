package manifest

import (
	"path/filepath"
	"testing"

	"github.com/dhcgn/mbox-to-json/model"
)

// BenchmarkJSONLWriter_Append benchmarks manifest write throughput per batch
func BenchmarkJSONLWriter_Append(b *testing.B) {
	w, err := NewJSONLWriter(filepath.Join(b.TempDir(), "manifest.jsonl"))
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	batch := make([]model.AttachmentInfo, 100)
	for i := range batch {
		batch[i] = model.AttachmentInfo{SourceDocumentIndex: i, AttachmentOrdinal: 1, ResolvedFilename: "x.pdf", ContentType: "application/pdf", SizeBytes: 4096}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := w.Append(batch); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSQLite_Append benchmarks transactional batch inserts
func BenchmarkSQLite_Append(b *testing.B) {
	db, err := OpenSQLite(filepath.Join(b.TempDir(), "manifest.db"), "bench.mbox", "")
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	batch := make([]model.AttachmentInfo, 100)
	for i := range batch {
		batch[i] = model.AttachmentInfo{SourceDocumentIndex: i, AttachmentOrdinal: 1, ResolvedFilename: "x.pdf", ContentType: "application/pdf", SizeBytes: 4096}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := db.Append(batch); err != nil {
			b.Fatal(err)
		}
	}
}
