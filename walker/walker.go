// Package walker flattens the part tree of one message into decoded body text and
// extracted attachments.
package walker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/emersion/go-message"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dhcgn/mbox-to-json/decode"
	"github.com/dhcgn/mbox-to-json/extract"
	"github.com/dhcgn/mbox-to-json/model"
)

// DefaultMaxDepth bounds descent into nested multipart structures.
const DefaultMaxDepth = 50

var ErrNoExtractor = errors.New("walker needs an extractor")

// Options configures a Walker.
type Options struct {
	MaxDepth         int
	MaxPayloadBytes  int64
	MaxBodyPartBytes int64
	InlineImages     bool
	SanitizeHTML     bool
	HTMLToMarkdown   bool
}

// Walker is safe for concurrent use; every Walk call gets its own extraction session.
type Walker struct {
	opts      Options
	decoder   *decode.Decoder
	extractor *extract.Extractor
	logger    *slog.Logger
	policy    *bluemonday.Policy
	markdown  *converter.Converter
}

func New(opts Options, x *extract.Extractor, logger *slog.Logger) (*Walker, error) {
	if x == nil {
		return nil, ErrNoExtractor
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	w := &Walker{
		opts:      opts,
		decoder:   decode.New(opts.MaxPayloadBytes),
		extractor: x,
		logger:    logger,
	}
	if opts.SanitizeHTML {
		w.policy = bluemonday.UGCPolicy()
	}
	if opts.HTMLToMarkdown {
		w.markdown = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	}
	return w, nil
}

type walkState struct {
	index     int
	session   *extract.Session
	doc       *model.Document
	bodyParts []model.BodyPart
}

func (s *walkState) warn(format string, args ...any) {
	s.doc.Warnings = append(s.doc.Warnings, fmt.Sprintf(format, args...))
}

// Walk parses raw and classifies every reachable leaf. An error means the
// message could not be parsed or walked; headers already parsed are returned with it.
func (w *Walker) Walk(raw model.RawDocument) (model.Document, error) {
	entity, err := message.Read(bytes.NewReader(raw.Raw))
	if err != nil && !tolerable(err) {
		return model.Document{}, fmt.Errorf("parse message %d: %w", raw.Index, err)
	}

	doc := model.Document{
		Index:       raw.Index,
		Headers:     headerFields(entity.Header),
		Attachments: []model.AttachmentInfo{},
	}
	st := &walkState{
		index:   raw.Index,
		session: w.extractor.NewSession(raw.Index),
		doc:     &doc,
	}

	if err := w.walkTree(entity, st); err != nil {
		w.logger.Error("walking message failed", "index", raw.Index, "err", err)
		return model.Document{Index: raw.Index, Headers: doc.Headers}, fmt.Errorf("walk message %d: %w", raw.Index, err)
	}

	doc.BodyParts = st.bodyParts
	doc.Body = joinBody(st.bodyParts)
	doc.Warnings = append(doc.Warnings, st.session.Warnings()...)
	return doc, nil
}

// walkTree turns a panic below the root into an error.
func (w *Walker) walkTree(root *message.Entity, st *walkState) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	w.walk(root, 0, st)
	return nil
}

func (w *Walker) walk(e *message.Entity, depth int, st *walkState) {
	if depth > w.opts.MaxDepth {
		w.logger.Warn("structural limit reached, skipping branch", "index", st.index, "depth", depth, "maxDepth", w.opts.MaxDepth)
		st.warn("structural limit: part depth %d exceeds %d", depth, w.opts.MaxDepth)
		return
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil && !tolerable(err) {
				w.logger.Warn("malformed multipart, skipping rest of branch", "index", st.index, "depth", depth, "err", err)
				st.warn("malformed multipart at depth %d: %v", depth, err)
				return
			}
			w.walk(part, depth+1, st)
		}
	}

	if isEmbeddedMessage(e) {
		inner, err := message.Read(e.Body)
		if err != nil && !tolerable(err) {
			w.logger.Warn("malformed embedded message", "index", st.index, "depth", depth, "err", err)
			st.warn("malformed embedded message at depth %d: %v", depth, err)
			return
		}
		w.walk(inner, depth+1, st)
		return
	}

	w.leaf(e, st)
}

func (w *Walker) leaf(e *message.Entity, st *walkState) {
	leaf := leafOf(e.Header)
	kind := Classify(leaf.ContentType, leaf.Disposition, leaf.HasFilename(), w.opts.InlineImages)

	switch kind {
	case Body:
		st.doc.Parts.Body++
		st.bodyParts = append(st.bodyParts, w.bodyPart(e.Body, leaf, st))
	case Attachment, InlineImage:
		if kind == InlineImage {
			st.doc.Parts.InlineImage++
		} else {
			st.doc.Parts.Attachment++
		}
		info, err := st.session.Save(extract.Part{
			ContentType: leaf.ContentType,
			Filename:    leaf.Filename,
			Inline:      kind == InlineImage,
		}, e.Body)
		if err != nil {
			w.logger.Warn("attachment not saved", "index", st.index, "contentType", leaf.ContentType, "err", err)
			st.doc.FailedAttachments++
			st.warn("%v", err)
			return
		}
		st.doc.Attachments = append(st.doc.Attachments, info)
	default:
		st.doc.Parts.Ignored++
		w.logger.Debug("ignoring part", "index", st.index, "contentType", leaf.ContentType, "disposition", leaf.Disposition)
	}
}

func (w *Walker) bodyPart(body io.Reader, leaf Leaf, st *walkState) model.BodyPart {
	limit := w.opts.MaxPayloadBytes
	if limit > 0 {
		body = io.LimitReader(body, limit+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		st.warn("read %s part: %v", leaf.ContentType, err)
	}

	var hints []string
	if leaf.Charset != "" {
		hints = append(hints, leaf.Charset)
	}
	text := w.decoder.Decode(raw, hints...)

	if leaf.ContentType == "text/html" {
		text = w.html(text, st)
	}

	text, truncated := decode.TruncateText(text, w.opts.MaxBodyPartBytes)
	return model.BodyPart{ContentType: leaf.ContentType, Text: text, Truncated: truncated}
}

func (w *Walker) html(text string, st *walkState) string {
	if w.policy != nil {
		text = w.policy.Sanitize(text)
	}
	if w.markdown != nil {
		md, err := w.markdown.ConvertString(text)
		if err != nil {
			w.logger.Debug("html to markdown failed, keeping html", "index", st.index, "err", err)
			return text
		}
		if strings.TrimSpace(md) != "" {
			return strings.TrimSpace(md)
		}
	}
	return text
}

// joinBody returns a single part verbatim and tags each part with its content type otherwise.
func joinBody(parts []model.BodyPart) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0].Text
	}
	sections := make([]string, 0, len(parts))
	for _, p := range parts {
		sections = append(sections, "["+p.ContentType+"]\n"+p.Text)
	}
	return strings.Join(sections, "\n\n")
}

func headerFields(h message.Header) []model.HeaderField {
	fields := []model.HeaderField{}
	it := h.Fields()
	for it.Next() {
		fields = append(fields, model.HeaderField{
			Name:  it.Key(),
			Value: decode.Header(it.Value()),
		})
	}
	return fields
}

func isEmbeddedMessage(e *message.Entity) bool {
	contentType, _, _ := e.Header.ContentType()
	return token(contentType) == "message/rfc822"
}

// tolerable reports errors after which go-message still returns a usable entity
// whose body is left undecoded.
func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
