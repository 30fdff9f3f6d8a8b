package pipeline

import (
	"fmt"
	"mime"
	"strings"
)

type FormatKind int

const (
	FormatUnsupported FormatKind = iota
	FormatPlainText
	FormatPDF
)

func (k FormatKind) String() string {
	switch k {
	case FormatPlainText:
		return "plain-text"
	case FormatPDF:
		return "pdf"
	default:
		return "unsupported"
	}
}

// Format is the extraction variant chosen for a job. It is resolved once,
// before any network or model cost is incurred.
type Format struct {
	Kind     FormatKind
	MimeType string
	Reason   string
}

func (f Format) Supported() bool {
	return f.Kind != FormatUnsupported
}

func ResolveFormat(mimeType string) Format {
	mt := normalizeMimeType(mimeType)
	switch {
	case mt == "application/pdf":
		return Format{Kind: FormatPDF, MimeType: mt}
	case strings.HasPrefix(mt, "text/"):
		return Format{Kind: FormatPlainText, MimeType: mt}
	case mt == "":
		return Format{Kind: FormatUnsupported, Reason: "missing mime type"}
	default:
		return Format{Kind: FormatUnsupported, MimeType: mt, Reason: fmt.Sprintf("mime type %s is not supported", mt)}
	}
}

func normalizeMimeType(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
