package model

import (
	"errors"
	"strings"
)

// ErrDocumentNotFound is returned by a store when an index lies past the end of the archive.
var ErrDocumentNotFound = errors.New("document not found")

// RawDocument is an immutable byte snapshot of one message, handed to a worker.
type RawDocument struct {
	Index int
	Raw   []byte
}

// HeaderField is a single decoded header line. Documents keep fields in order,
// duplicates included.
type HeaderField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BodyPart is one decoded text leaf of a document.
type BodyPart struct {
	ContentType string `json:"contentType"`
	Text        string `json:"text"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// PartCounts tallies how the leaves of a document were classified.
type PartCounts struct {
	Body        int `json:"body"`
	Attachment  int `json:"attachment"`
	InlineImage int `json:"inlineImage"`
	Ignored     int `json:"ignored"`
}

// Total returns the number of classified leaves.
func (p PartCounts) Total() int {
	return p.Body + p.Attachment + p.InlineImage + p.Ignored
}

// Document is the flattened record produced for one message of the archive.
type Document struct {
	Index             int              `json:"index"`
	Headers           []HeaderField    `json:"headers"`
	Body              string           `json:"body"`
	BodyParts         []BodyPart       `json:"bodyParts,omitempty"`
	Attachments       []AttachmentInfo `json:"attachments"`
	Parts             PartCounts       `json:"parts"`
	FailedAttachments int              `json:"failedAttachments,omitempty"`
	Warnings          []string         `json:"warnings,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// Failed reports whether the document carries an error marker.
func (d Document) Failed() bool {
	return d.Error != ""
}

// Header returns the values of all fields named name, in order.
func (d Document) Header(name string) []string {
	var values []string
	for _, f := range d.Headers {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// FailedDocument builds the record used when processing a document failed as a
// whole. Headers parsed before the failure are kept.
func FailedDocument(index int, err error, headers ...HeaderField) Document {
	if headers == nil {
		headers = []HeaderField{}
	}
	return Document{
		Index:       index,
		Headers:     headers,
		Attachments: []AttachmentInfo{},
		Error:       err.Error(),
	}
}
