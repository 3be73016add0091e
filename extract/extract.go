// Package extract materializes attachment payloads under a destination directory and
// builds the AttachmentInfo records describing them.
package extract

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dhcgn/mbox-to-json/model"
)

// InlineImagesDir is the reserved subfolder receiving inline images.
const InlineImagesDir = "inline_images"

var ErrNoDestination = errors.New("attachment destination directory is empty")

// Options configures an Extractor.
type Options struct {
	Dir          string
	Materialize  bool
	InlineImages bool
	Sidecars     bool
	RunID        string
}

// Part is the metadata of one attachment leaf.
type Part struct {
	ContentType string
	Filename    string
	Inline      bool
}

// Extractor is shared by all workers; per-document state lives in a Session.
type Extractor struct {
	opts      Options
	inlineDir string
	logger    *slog.Logger
}

// New prepares the destination directories when materialization is enabled.
func New(opts Options, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Extractor{
		opts:      opts,
		inlineDir: filepath.Join(opts.Dir, InlineImagesDir),
		logger:    logger,
	}
	if !opts.Materialize {
		return x, nil
	}

	if opts.Dir == "" {
		return nil, ErrNoDestination
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment directory: %w", err)
	}
	if opts.InlineImages {
		if err := os.MkdirAll(x.inlineDir, 0o755); err != nil {
			return nil, fmt.Errorf("create inline image directory: %w", err)
		}
	}
	return x, nil
}

// NewSession starts the extraction pass of one document.
func (x *Extractor) NewSession(index int) *Session {
	return &Session{x: x, index: index, claimed: make(PathIndex), sidecars: make(PathIndex)}
}

// Session owns the ordinal counters and claimed paths of a single document.
// It must not be shared between goroutines.
type Session struct {
	x           *Extractor
	index       int
	attachments int
	inline      int
	claimed     PathIndex
	// sidecars is kept apart from claimed so metadata files never shift attachment names.
	sidecars PathIndex
	warnings    []string
}

// Warnings returns non-fatal problems met while saving, such as failed sidecars.
func (s *Session) Warnings() []string {
	return s.warnings
}

// Save consumes body and returns the record of the attachment. The ordinal is
// consumed even when saving fails.
func (s *Session) Save(part Part, body io.Reader) (model.AttachmentInfo, error) {
	var (
		ordinal int
		label   string
		dir     string
	)
	if part.Inline {
		s.inline++
		ordinal = s.inline
		label = "ii" + strconv.Itoa(ordinal)
		dir = s.x.inlineDir
	} else {
		s.attachments++
		ordinal = s.attachments
		label = strconv.Itoa(ordinal)
		dir = s.x.opts.Dir
	}

	name := DecodeFilename(part.Filename, label)
	name = fmt.Sprintf("%d %s", s.index, Sanitize(name))

	if !s.x.opts.Materialize {
		size, err := io.Copy(io.Discard, body)
		if err != nil {
			return model.AttachmentInfo{}, fmt.Errorf("read attachment %s: %w", label, err)
		}
		return newRecord(s.index, ordinal, part, "", size, false), nil
	}

	path := Resolve(dir, name, s.claimed, label)
	file, err := create(path)
	truncated := false
	if errors.Is(err, syscall.ENAMETOOLONG) {
		short := fmt.Sprintf("%d %s%s", s.index, label, Extension(name))
		path = Resolve(dir, short, s.claimed, label)
		truncated = true
		s.x.logger.Debug("attachment name too long, using short name", "index", s.index, "ordinal", label, "path", path)
		file, err = create(path)
	}
	if err != nil {
		return model.AttachmentInfo{}, fmt.Errorf("create attachment %s: %w", label, err)
	}

	size, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return model.AttachmentInfo{}, fmt.Errorf("write attachment %s: %w", path, err)
	}

	info := newRecord(s.index, ordinal, part, s.relative(path), size, truncated)

	if s.sidecars.Claimed(path) {
		s.warn(label, fmt.Errorf("%s replaced sidecar metadata of an earlier attachment", filepath.Base(path)))
	}
	if s.x.opts.Sidecars {
		s.saveSidecar(path, info, label)
	}

	return info, nil
}

// saveSidecar writes the metadata file of the attachment at path. It is skipped
// when an attachment of the same document already owns that name.
func (s *Session) saveSidecar(path string, info model.AttachmentInfo, label string) {
	sidecarPath := path + sidecarSuffix
	if s.claimed.Claimed(sidecarPath) {
		s.warn(label, fmt.Errorf("sidecar %s clashes with an attachment name", filepath.Base(sidecarPath)))
		return
	}
	s.sidecars.Claim(sidecarPath)
	if err := writeSidecar(sidecarPath, info, s.x.opts.RunID); err != nil {
		s.warn(label, err)
	}
}

func (s *Session) warn(label string, err error) {
	s.x.logger.Warn("sidecar metadata problem", "index", s.index, "ordinal", label, "err", err)
	s.warnings = append(s.warnings, fmt.Sprintf("attachment %s: %v", label, err))
}

func (s *Session) relative(path string) string {
	rel, err := filepath.Rel(s.x.opts.Dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func create(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}
