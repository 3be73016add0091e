package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dhcgn/mbox-to-json/model"
)

// Tool identifies the extractor in sidecar metadata.
const Tool = "mbox-to-json"

// Version is stamped into sidecar metadata; overridden at build time.
var Version = "dev"

const sidecarSuffix = ".meta.json"

type sidecar struct {
	OriginalFilename    string `json:"originalFilename,omitempty"`
	ResolvedFilename    string `json:"resolvedFilename"`
	ContentType         string `json:"contentType"`
	SourceDocumentIndex int    `json:"sourceDocumentIndex"`
	AttachmentOrdinal   int    `json:"attachmentOrdinal"`
	IsInline            bool   `json:"isInline"`
	SizeBytes           int64  `json:"sizeBytes"`
	Tool                string `json:"tool"`
	ToolVersion         string `json:"toolVersion"`
	RunID               string `json:"runId,omitempty"`
}

func newRecord(index, ordinal int, part Part, resolved string, size int64, truncated bool) model.AttachmentInfo {
	return model.AttachmentInfo{
		SourceDocumentIndex: index,
		AttachmentOrdinal:   ordinal,
		OriginalFilename:    part.Filename,
		ResolvedFilename:    resolved,
		ContentType:         part.ContentType,
		SizeBytes:           size,
		IsInline:            part.Inline,
		Truncated:           truncated,
	}
}

// writeSidecar stores the metadata of info next to the attachment at path.
func writeSidecar(path string, info model.AttachmentInfo, runID string) error {
	data, err := json.MarshalIndent(sidecar{
		OriginalFilename:    info.OriginalFilename,
		ResolvedFilename:    filepath.Base(info.ResolvedFilename),
		ContentType:         info.ContentType,
		SourceDocumentIndex: info.SourceDocumentIndex,
		AttachmentOrdinal:   info.AttachmentOrdinal,
		IsInline:            info.IsInline,
		SizeBytes:           info.SizeBytes,
		Tool:                Tool,
		ToolVersion:         Version,
		RunID:               runID,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}
