// Package llm produces tagged operation commands from a user's chat message.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/a3tai/pdf-assistant/internal/models"
)

const (
	historyWindow  = 4
	historyPreview = 100
)

// Request carries what a generator may use to pick a command.
type Request struct {
	Message    string
	FilesCount int
	// PageCount is the page count of the file single-input commands act on,
	// zero when unknown.
	PageCount int
	History   []models.ChatMessage
}

// Generator turns a chat message into generator output that command.Parse
// understands.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

const basePrompt = `You translate requests about PDF documents into exactly one command.

Operations:
- extract_pages: copy pages into a new PDF. "pages": [1, 2, 3] required, "output_name" optional
- merge_pdfs: merge every uploaded PDF. "output_name" optional
- split_pdf: split into parts. "pages_per_file" optional (default 1)
- rotate_pages: "pages": [1, 2] required, "rotation": 90, 180 or 270 required
- compress_pdf: shrink the file. "output_name" optional
- add_watermark: "watermark_text" required; "position" (center, top-left, top-right, bottom-left, bottom-right), "opacity", "font_size", "color" optional
- extract_text: "page_numbers" or "start_page"/"end_page" optional

Answer with this structure and nothing else:

<method_call_start>
<method_name>OPERATION</method_name>
<parameters>
{"name": "value"}
</parameters>
<method_call_end>

Parameters must be strict JSON: double quotes, no comments, no trailing commas.

Example request: "Keep only pages 1 to 3"
<method_call_start>
<method_name>extract_pages</method_name>
<parameters>
{"pages": [1, 2, 3]}
</parameters>
<method_call_end>
`

// SystemPrompt builds the instruction sent ahead of the user's message.
func SystemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if req.FilesCount > 0 {
		fmt.Fprintf(&b, "\nContext: %d PDF file(s) available.", req.FilesCount)
		if req.PageCount > 0 {
			fmt.Fprintf(&b, " The selected file has %d page(s).", req.PageCount)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("\nContext: no PDF files uploaded yet.\n")
	}

	if len(req.History) > 2 {
		b.WriteString("\nRecent conversation:\n")
		recent := req.History
		if len(recent) > historyWindow {
			recent = recent[len(recent)-historyWindow:]
		}
		for _, msg := range recent {
			role := "Assistant"
			if msg.MessageType == models.MessageUser {
				role = "User"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, preview(msg.Content))
		}
	}

	b.WriteString("\nCommand for the next request:")
	return b.String()
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= historyPreview {
		return s
	}
	return string(r[:historyPreview]) + "..."
}

// FormatCommand renders a command in the tagged format.
func FormatCommand(op models.OperationType, paramsJSON string) string {
	return fmt.Sprintf("<method_call_start>\n<method_name>%s</method_name>\n<parameters>\n%s\n</parameters>\n<method_call_end>",
		op, paramsJSON)
}
