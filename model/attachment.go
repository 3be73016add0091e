package model

// AttachmentInfo describes one extracted attachment or inline image.
type AttachmentInfo struct {
	SourceDocumentIndex int    `json:"sourceDocumentIndex"`
	AttachmentOrdinal   int    `json:"attachmentOrdinal"`
	OriginalFilename    string `json:"originalFilename,omitempty"`
	ResolvedFilename    string `json:"resolvedFilename,omitempty"`
	ContentType         string `json:"contentType"`
	SizeBytes           int64  `json:"sizeBytes"`
	IsInline            bool   `json:"isInline"`
	Truncated           bool   `json:"truncated"`
}
