// Package command turns generator output of the form
//
//	<method_name>rotate_pages</method_name>
//	<parameters>{"pages": [1], "rotation": 90}</parameters>
//
// into a validated execution plan.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf"
)

var (
	ErrNoCommand         = errors.New("no command type found in response")
	ErrNoParameters      = errors.New("no parameters found in response")
	ErrInvalidJSON       = errors.New("invalid JSON in parameters")
	ErrUnsupported       = errors.New("unsupported command")
	ErrValidationFailure = errors.New("command validation failed")
)

// Selection is how input files are chosen for a command.
type Selection string

const (
	SelectSingle   Selection = "single"
	SelectMultiple Selection = "multiple"
)

// OutputType is the kind of result a command produces.
type OutputType string

const (
	OutputPDF         OutputType = "pdf"
	OutputMultiplePDF OutputType = "multiple_pdf"
	OutputText        OutputType = "text"
)

// Complexity is a rough cost estimate used for progress reporting.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Plan is a parsed and validated command.
type Plan struct {
	Operation  models.OperationType `json:"operation"`
	Parameters map[string]any       `json:"parameters"`
	Selection  Selection            `json:"requires_pdf_selection"`
	OutputType OutputType           `json:"output_type"`
	Complexity Complexity           `json:"estimated_complexity"`
}

var (
	methodPattern = regexp.MustCompile(`(?s)<method_name>(.*?)</method_name>`)
	paramsPattern = regexp.MustCompile(`(?s)<parameters>(.*?)</parameters>`)
	singleKey     = regexp.MustCompile(`'([^']*)'\s*:`)
	singleValue   = regexp.MustCompile(`:\s*'([^']*)'`)
)

// Parse extracts, cleans and validates a command from raw generator output.
func Parse(response string) (*Plan, error) {
	m := methodPattern.FindStringSubmatch(response)
	if m == nil {
		return nil, ErrNoCommand
	}
	op := models.OperationType(strings.TrimSpace(m[1]))

	p := paramsPattern.FindStringSubmatch(response)
	if p == nil {
		return nil, ErrNoParameters
	}

	params := map[string]any{}
	if cleaned := CleanJSON(p[1]); cleaned != "" {
		if err := json.Unmarshal([]byte(cleaned), &params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		if params == nil {
			params = map[string]any{}
		}
	}

	if !op.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, op)
	}
	if err := Validate(op, params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailure, err)
	}

	return &Plan{
		Operation:  op,
		Parameters: params,
		Selection:  SelectionFor(op),
		OutputType: outputFor(op),
		Complexity: complexityFor(op),
	}, nil
}

// CleanJSON strips comments and converts single-quoted keys and values.
// Input that is already valid JSON is returned unchanged.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if json.Valid([]byte(s)) {
		return s
	}
	s = stripComments(s)
	s = singleKey.ReplaceAllString(s, `"$1":`)
	s = singleValue.ReplaceAllString(s, `: "$1"`)
	return strings.TrimSpace(s)
}

// Validate applies the per-command parameter rules.
func Validate(op models.OperationType, params map[string]any) error {
	switch op {
	case models.OpExtractPages:
		return requirePages(params)
	case models.OpRotatePages:
		if err := requirePages(params); err != nil {
			return err
		}
		rotation, err := pdf.Int(params, "rotation", 0)
		if err != nil || !pdf.ValidRotation(rotation) {
			return errors.New("rotation must be 90, 180, or 270 degrees")
		}
	case models.OpAddWatermark:
		text, ok := params["watermark_text"].(string)
		if !ok || strings.TrimSpace(text) == "" {
			return errors.New("watermark_text must be a non-empty string")
		}
	}
	return nil
}

func requirePages(params map[string]any) error {
	if _, ok := params["pages"]; !ok {
		return errors.New("pages parameter is required")
	}
	pages, err := pdf.IntList(params, "pages")
	if err != nil || len(pages) == 0 {
		return errors.New("pages must be a non-empty list of positive integers")
	}
	return nil
}

// SelectionFor reports how op picks its input files.
func SelectionFor(op models.OperationType) Selection {
	if op == models.OpMergePDFs {
		return SelectMultiple
	}
	return SelectSingle
}

func outputFor(op models.OperationType) OutputType {
	switch op {
	case models.OpSplitPDF:
		return OutputMultiplePDF
	case models.OpExtractText:
		return OutputText
	default:
		return OutputPDF
	}
}

func complexityFor(op models.OperationType) Complexity {
	switch op {
	case models.OpMergePDFs, models.OpSplitPDF:
		return ComplexityMedium
	case models.OpCompressPDF:
		return ComplexityHigh
	default:
		return ComplexityLow
	}
}

// SelectInputs picks the PDFs a plan operates on; other files such as text
// extraction results are never selected. Multiple-selection plans take every
// PDF; single-selection plans take the current file when it is a PDF,
// otherwise the first PDF.
func SelectInputs(plan *Plan, files []models.PDFFileInfo, currentID string) []models.PDFFileInfo {
	docs := make([]models.PDFFileInfo, 0, len(files))
	for _, f := range files {
		if f.IsPDF() {
			docs = append(docs, f)
		}
	}
	if len(docs) == 0 {
		return nil
	}
	if plan.Selection == SelectMultiple {
		return docs
	}
	files = docs
	for _, f := range files {
		if f.ID == currentID {
			return []models.PDFFileInfo{f}
		}
	}
	return []models.PDFFileInfo{files[0]}
}

// stripComments removes // and /* */ comments outside quoted strings.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
