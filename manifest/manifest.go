// Package manifest persists the attachment records of a run as they are flushed.
package manifest

import (
	"errors"

	"github.com/dhcgn/mbox-to-json/model"
)

// Sink receives the attachment records of every flushed batch, in index order.
type Sink interface {
	Append(records []model.AttachmentInfo) error
}

// Multi fans a batch out to several sinks and stops at the first error.
type Multi []Sink

func (m Multi) Append(records []model.AttachmentInfo) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Append(records); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append([]model.AttachmentInfo) error { return nil }

var ErrPathEmpty = errors.New("manifest path is empty")
