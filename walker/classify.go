package walker

import "strings"

// Kind is the classification of a leaf part.
type Kind int

const (
	Ignored Kind = iota
	Body
	Attachment
	InlineImage
)

func (k Kind) String() string {
	switch k {
	case Body:
		return "body"
	case Attachment:
		return "attachment"
	case InlineImage:
		return "inline_image"
	default:
		return "ignored"
	}
}

// Classify decides what a leaf is. The order of the checks matters: binary
// media types are attachments even when marked inline.
func Classify(contentType, disposition string, hasFilename, inlineImages bool) Kind {
	contentType = strings.ToLower(contentType)
	disposition = strings.ToLower(disposition)

	switch {
	case disposition == "attachment":
		return Attachment
	case disposition != "inline" && hasFilename:
		return Attachment
	case isBinaryMedia(contentType):
		return Attachment
	case inlineImages && strings.HasPrefix(contentType, "image/"):
		return InlineImage
	case contentType == "text/plain" || contentType == "text/html":
		return Body
	}
	return Ignored
}

func isBinaryMedia(contentType string) bool {
	if strings.HasPrefix(contentType, "application/") {
		return contentType != "application/javascript"
	}
	return strings.HasPrefix(contentType, "model/") ||
		strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "video/")
}
