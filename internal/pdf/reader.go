package pdf

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const pageBreak = "\n\n--- Page Break ---\n\n"

// Reader extracts plain text from PDF pages
type Reader struct {
	maxTextSize int
}

// NewReader creates a reader that stops after maxTextSize bytes of text
func NewReader(maxTextSize int) *Reader {
	if maxTextSize <= 0 {
		maxTextSize = 10 * 1024 * 1024
	}
	return &Reader{maxTextSize: maxTextSize}
}

// ExtractText returns the text of the given 1-based pages, or of every page
// when pages is empty. Pages with text are separated by a page-break marker.
// A document without a text layer yields an empty string.
func (r *Reader) ExtractText(path string, pages []int) (string, error) {
	f, pdfReader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := pdfReader.NumPage()
	if len(pages) == 0 {
		pages = make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
	}

	var builder strings.Builder
	for _, pageNum := range pages {
		if pageNum < 1 || pageNum > total {
			return "", fmt.Errorf("page %d out of range (document has %d pages)", pageNum, total)
		}

		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(content) == "" {
			continue
		}
		if builder.Len() > 0 {
			content = pageBreak + content
		}

		if builder.Len()+len(content) > r.maxTextSize {
			if remaining := r.maxTextSize - builder.Len(); remaining > 0 {
				builder.WriteString(truncate(content, remaining))
			}
			break
		}

		builder.WriteString(content)
	}

	return strings.TrimSpace(builder.String()), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
