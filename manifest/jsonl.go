package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhcgn/mbox-to-json/model"
)

// JSONLWriter appends one JSON object per attachment record to a file.
type JSONLWriter struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	written int
	mu      sync.Mutex
}

func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathEmpty
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open manifest file: %w", err)
	}

	return &JSONLWriter{
		path:   path,
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024), // 64KB buffer
	}, nil
}

func (j *JSONLWriter) Path() string {
	return j.path
}

// Append buffers the records and flushes them once the batch is written.
func (j *JSONLWriter) Append(records []model.AttachmentInfo) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return os.ErrClosed
	}

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode manifest record: %w", err)
		}
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("write manifest record: %w", err)
		}
		if err := j.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
		j.written++
	}

	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("flush manifest file: %w", err)
	}
	return nil
}

// Written returns the number of records appended so far.
func (j *JSONLWriter) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Close flushes and closes the manifest file.
func (j *JSONLWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}

	var firstErr error
	if err := j.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush manifest file: %w", err)
	}
	if err := j.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync manifest file: %w", err)
	}
	if err := j.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close manifest file: %w", err)
	}
	j.file = nil

	return firstErr
}

// ReadJSONL loads a manifest written by JSONLWriter.
func ReadJSONL(path string) ([]model.AttachmentInfo, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open manifest file: %w", err)
	}
	defer file.Close()

	var records []model.AttachmentInfo
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var record model.AttachmentInfo
		if err := json.Unmarshal(text, &record); err != nil {
			return nil, fmt.Errorf("parse manifest line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest file: %w", err)
	}
	return records, nil
}
