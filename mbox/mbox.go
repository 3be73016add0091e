package mbox

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/mbox-to-json/model"
)

var (
	ErrPathEmpty   = errors.New("mbox path is empty")
	ErrNotAFile    = errors.New("mbox path is not a regular file")
	ErrStoreClosed = errors.New("mbox store is closed")
)

// Opener returns a fresh reader positioned at the start of the archive.
type Opener func() (io.ReadCloser, error)

// Store gives indexed access to the messages of an mbox archive. Reads are
// sequential: moving forward skips messages, moving backward reopens the archive.
type Store struct {
	open   Opener
	size   int64
	logger *slog.Logger

	mu     sync.Mutex
	closer io.Closer
	reader *mboxlib.Reader
	next   int
	count  int
	closed bool
}

// Open returns a Store over the mbox file at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrPathEmpty
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	opener := func() (io.ReadCloser, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open mbox: %w", err)
		}
		return file, nil
	}
	return NewStore(opener, info.Size(), logger), nil
}

// NewStore builds a Store from an opener; size is reported by Size.
func NewStore(open Opener, size int64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{open: open, size: size, logger: logger, count: -1}
}

// Size returns the archive size in bytes.
func (s *Store) Size() int64 {
	return s.size
}

// Len counts the messages of the archive. The count is computed once.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	if s.count >= 0 {
		return s.count, nil
	}

	rc, err := s.open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	count, err := countMessages(mboxlib.NewReader(rc))
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	s.count = count
	return count, nil
}

// Get returns the raw bytes of the message at index, or model.ErrDocumentNotFound
// once the archive is exhausted.
func (s *Store) Get(index int) (model.RawDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.RawDocument{}, ErrStoreClosed
	}
	if index < 0 {
		return model.RawDocument{}, fmt.Errorf("message %d: %w", index, model.ErrDocumentNotFound)
	}
	if s.reader == nil || index < s.next {
		if err := s.rewind(); err != nil {
			return model.RawDocument{}, err
		}
	}

	for s.next < index {
		msg, err := s.reader.NextMessage()
		if err != nil {
			return model.RawDocument{}, s.readError(index, err)
		}
		if _, err := io.Copy(io.Discard, msg); err != nil {
			return model.RawDocument{}, s.readError(s.next, err)
		}
		s.next++
	}

	msg, err := s.reader.NextMessage()
	if err != nil {
		return model.RawDocument{}, s.readError(index, err)
	}
	raw, err := io.ReadAll(msg)
	if err != nil {
		return model.RawDocument{}, s.readError(index, err)
	}
	s.next++

	return model.RawDocument{Index: index, Raw: raw}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return s.release()
}

func (s *Store) rewind() error {
	if err := s.release(); err != nil {
		s.logger.Debug("closing mbox before rewind failed", "err", err)
	}
	rc, err := s.open()
	if err != nil {
		return err
	}
	s.closer = rc
	s.reader = mboxlib.NewReader(rc)
	s.next = 0
	return nil
}

func (s *Store) release() error {
	s.reader = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// readError maps EOF to ErrDocumentNotFound and drops the broken reader so the
// next Get starts from a clean state.
func (s *Store) readError(index int, err error) error {
	_ = s.release()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("message %d: %w", index, model.ErrDocumentNotFound)
	}
	s.logger.Error("mbox read error", "index", index, "err", err)
	return fmt.Errorf("message %d read: %w", index, err)
}

func countMessages(reader *mboxlib.Reader) (int, error) {
	count := 0
	for {
		msg, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}
		if _, err := io.Copy(io.Discard, msg); err != nil {
			return 0, err
		}
		count++
	}
}
