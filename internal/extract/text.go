package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"docvault/internal/pipeline"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// extractText turns a text/* buffer into a single page. Markup types are
// flattened to plain text first.
func extractText(mimeType string, data []byte) ([]pipeline.ExtractedPage, error) {
	switch mimeType {
	case "text/html", "text/xml":
		res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", mimeType, err)
		}
		return []pipeline.ExtractedPage{{PageIndex: 0, Text: res.Body}}, nil
	}
	return []pipeline.ExtractedPage{{PageIndex: 0, Text: decodeText(data)}}, nil
}

func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
