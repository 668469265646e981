package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
)

var (
	// ErrUnsupportedOperation is returned for operation types outside the catalogue.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrInvalidParameters wraps parameter and input-count problems.
	ErrInvalidParameters = errors.New("invalid parameters")
)

func init() {
	// Keep pdfcpu from creating a config directory under the user's home.
	model.ConfigPath = "disable"
}

// Input is one source document for an operation.
type Input struct {
	Path  string
	Name  string
	Pages int
}

// Output is one file produced by an operation, still in the scratch directory.
type Output struct {
	Path  string
	Name  string
	Pages int
	Size  int64
}

// Result is the outcome of Perform.
type Result struct {
	Outputs []Output
	Text    string
}

// Service validates, inspects and transforms PDF files
type Service struct {
	validator *Validator
	reader    *Reader
	logger    *zap.Logger
}

// NewService creates a PDF service enforcing maxFileSize on validation
func NewService(maxFileSize int64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		validator: NewValidator(maxFileSize),
		reader:    NewReader(0),
		logger:    logger,
	}
}

// Validate checks that path is a readable PDF
func (s *Service) Validate(path string) error {
	return s.validator.Validate(path)
}

// Inspect validates path and returns its size and page count
func (s *Service) Inspect(path string) (*FileStats, error) {
	if err := s.validator.Validate(path); err != nil {
		return nil, err
	}
	return Inspect(path)
}

// ExtractText extracts text from the given pages, or all pages when empty
func (s *Service) ExtractText(path string, pages []int) (string, error) {
	return s.reader.ExtractText(path, pages)
}

// Perform runs op over inputs and writes results into outDir, which must exist.
func (s *Service) Perform(ctx context.Context, op models.OperationType, inputs []Input,
	params map[string]any, outDir string,
) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no input files", ErrInvalidParameters)
	}
	if params == nil {
		params = map[string]any{}
	}

	start := time.Now()
	var (
		res *Result
		err error
	)

	switch op {
	case models.OpExtractPages:
		res, err = s.extractPages(inputs[0], params, outDir)
	case models.OpMergePDFs:
		res, err = s.merge(inputs, params, outDir)
	case models.OpSplitPDF:
		res, err = s.split(inputs[0], params, outDir)
	case models.OpRotatePages:
		res, err = s.rotate(inputs[0], params, outDir)
	case models.OpCompressPDF:
		res, err = s.compress(inputs[0], params, outDir)
	case models.OpAddWatermark:
		res, err = s.watermark(inputs[0], params, outDir)
	case models.OpExtractText:
		res, err = s.extractText(inputs[0], params, outDir)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
	}

	if err != nil {
		s.logger.Warn("pdf operation failed",
			zap.String("operation", string(op)), zap.Error(err))
		return nil, err
	}

	s.logger.Debug("pdf operation completed",
		zap.String("operation", string(op)),
		zap.Int("outputs", len(res.Outputs)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (s *Service) pageCount(in Input) (int, error) {
	if in.Pages > 0 {
		return in.Pages, nil
	}
	return api.PageCountFile(in.Path)
}

func (s *Service) checkPages(in Input, pages []int) error {
	total, err := s.pageCount(in)
	if err != nil {
		return fmt.Errorf("failed to count pages: %w", err)
	}
	for _, p := range pages {
		if p > total {
			return fmt.Errorf("%w: page %d out of range (document has %d pages)", ErrInvalidParameters, p, total)
		}
	}
	return nil
}

func (s *Service) extractPages(in Input, params map[string]any, outDir string) (*Result, error) {
	pages, err := IntList(params, "pages", "page_numbers")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: pages parameter is required", ErrInvalidParameters)
	}
	if err := s.checkPages(in, pages); err != nil {
		return nil, err
	}

	name := outputName(params, in.Name, "_pages.pdf")
	out := filepath.Join(outDir, name)
	if err := api.TrimFile(in.Path, out, pageSelection(pages), newConf()); err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	return singleOutput(out, name)
}

func (s *Service) merge(inputs []Input, params map[string]any, outDir string) (*Result, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: merging needs at least two PDFs", ErrInvalidParameters)
	}

	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}

	name := outputName(params, "", "merged.pdf")
	out := filepath.Join(outDir, name)
	if err := api.MergeCreateFile(paths, out, false, newConf()); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return singleOutput(out, name)
}

func (s *Service) split(in Input, params map[string]any, outDir string) (*Result, error) {
	span, err := Int(params, "pages_per_file", 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if span < 1 {
		return nil, fmt.Errorf("%w: pages_per_file must be at least 1", ErrInvalidParameters)
	}

	splitDir, err := os.MkdirTemp(outDir, "split-")
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	if err := api.SplitFile(in.Path, splitDir, span, newConf()); err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	parts, err := filepath.Glob(filepath.Join(splitDir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	sort.Slice(parts, func(i, j int) bool { return splitIndex(parts[i]) < splitIndex(parts[j]) })

	stem := stemOf(in.Name)
	res := &Result{}
	for i, part := range parts {
		name := fmt.Sprintf("%s_part_%d.pdf", stem, i+1)
		dest := filepath.Join(outDir, name)
		if err := os.Rename(part, dest); err != nil {
			return nil, fmt.Errorf("split: %w", err)
		}
		o, err := describe(dest, name)
		if err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, *o)
	}
	_ = os.Remove(splitDir)

	if len(res.Outputs) == 0 {
		return nil, fmt.Errorf("split produced no files")
	}
	return res, nil
}

func (s *Service) rotate(in Input, params map[string]any, outDir string) (*Result, error) {
	rotation, err := Int(params, "rotation", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if !ValidRotation(rotation) {
		return nil, fmt.Errorf("%w: rotation must be 90, 180, or 270 degrees", ErrInvalidParameters)
	}

	pages, err := IntList(params, "pages", "page_numbers")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if err := s.checkPages(in, pages); err != nil {
		return nil, err
	}

	name := outputName(params, in.Name, "_rotated.pdf")
	out := filepath.Join(outDir, name)
	if err := api.RotateFile(in.Path, out, rotation, pageSelection(pages), newConf()); err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}
	return singleOutput(out, name)
}

func (s *Service) compress(in Input, params map[string]any, outDir string) (*Result, error) {
	name := outputName(params, in.Name, "_compressed.pdf")
	out := filepath.Join(outDir, name)
	if err := api.OptimizeFile(in.Path, out, newConf()); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return singleOutput(out, name)
}

var (
	hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

	namedColors = map[string]string{
		"gray":  "#808080",
		"grey":  "#808080",
		"black": "#000000",
		"red":   "#FF0000",
		"green": "#008000",
		"blue":  "#0000FF",
	}

	positions = map[string]string{
		"center":       "c",
		"top-left":     "tl",
		"top-right":    "tr",
		"bottom-left":  "bl",
		"bottom-right": "br",
	}
)

// WatermarkDescription converts assistant parameters into a pdfcpu watermark
// description string.
func WatermarkDescription(params map[string]any) (string, error) {
	position := strings.ToLower(String(params, "center", "position"))
	pos, ok := positions[position]
	if !ok {
		return "", fmt.Errorf("%w: unknown watermark position %q", ErrInvalidParameters, position)
	}

	opacity, err := Float(params, "opacity", 0.3)
	if err != nil || opacity < 0 || opacity > 1 {
		return "", fmt.Errorf("%w: opacity must be between 0.0 and 1.0", ErrInvalidParameters)
	}

	fontSize, err := Int(params, "font_size", 48)
	if err != nil || fontSize < 1 || fontSize > 200 {
		return "", fmt.Errorf("%w: font_size must be between 1 and 200", ErrInvalidParameters)
	}

	color := strings.ToLower(String(params, "gray", "color"))
	if named, ok := namedColors[color]; ok {
		color = named
	}
	if !hexColor.MatchString(color) {
		return "", fmt.Errorf("%w: unsupported color %q", ErrInvalidParameters, color)
	}

	desc := fmt.Sprintf("fontname:Helvetica, points:%d, scalefactor:1 abs, position:%s, opacity:%.2f, fillcolor:%s",
		fontSize, pos, opacity, strings.ToUpper(color))
	if pos != "c" {
		desc += ", rotation:0"
	}
	return desc, nil
}

func (s *Service) watermark(in Input, params map[string]any, outDir string) (*Result, error) {
	text := strings.TrimSpace(String(params, "", "watermark_text"))
	if text == "" {
		return nil, fmt.Errorf("%w: watermark_text must be a non-empty string", ErrInvalidParameters)
	}
	desc, err := WatermarkDescription(params)
	if err != nil {
		return nil, err
	}

	name := outputName(params, in.Name, "_watermarked.pdf")
	out := filepath.Join(outDir, name)
	if err := api.AddTextWatermarksFile(in.Path, out, nil, true, text, desc, newConf()); err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	return singleOutput(out, name)
}

func (s *Service) extractText(in Input, params map[string]any, outDir string) (*Result, error) {
	pages, err := IntList(params, "page_numbers", "pages")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}

	if len(pages) == 0 {
		if _, _, ranged := lookup(params, "start_page", "end_page"); ranged {
			total, err := s.pageCount(in)
			if err != nil {
				return nil, fmt.Errorf("failed to count pages: %w", err)
			}
			first, err := Int(params, "start_page", 1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
			}
			last, err := Int(params, "end_page", total)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
			}
			if first < 1 || last > total || first > last {
				return nil, fmt.Errorf("%w: invalid page range %d-%d (document has %d pages)",
					ErrInvalidParameters, first, last, total)
			}
			for p := first; p <= last; p++ {
				pages = append(pages, p)
			}
		}
	}

	text, err := s.reader.ExtractText(in.Path, pages)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	name := stemOf(in.Name) + "_text.txt"
	out := filepath.Join(outDir, name)
	if err := os.WriteFile(out, []byte(text), 0o600); err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	return &Result{
		Outputs: []Output{{Path: out, Name: name, Size: int64(len(text))}},
		Text:    text,
	}, nil
}

// ValidRotation reports whether degrees is an accepted rotation.
func ValidRotation(degrees int) bool {
	return degrees == 90 || degrees == 180 || degrees == 270
}

func singleOutput(path, name string) (*Result, error) {
	o, err := describe(path, name)
	if err != nil {
		return nil, err
	}
	return &Result{Outputs: []Output{*o}}, nil
}

func describe(path, name string) (*Output, error) {
	stats, err := Inspect(path)
	if err != nil {
		return nil, err
	}
	return &Output{Path: path, Name: name, Pages: stats.Pages, Size: stats.Size}, nil
}

func stemOf(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "document"
	}
	return stem
}

// outputName honours output_name when given, otherwise derives one from the
// source name. A fixed suffix without a leading underscore replaces the name.
func outputName(params map[string]any, source, suffix string) string {
	if custom := strings.TrimSpace(String(params, "", "output_name", "output_filename")); custom != "" {
		custom = filepath.Base(custom)
		if !strings.EqualFold(filepath.Ext(custom), ".pdf") {
			custom += ".pdf"
		}
		return custom
	}
	if !strings.HasPrefix(suffix, "_") {
		return suffix
	}
	return stemOf(source) + suffix
}

// splitIndex pulls the leading page number out of pdfcpu split names such as
// "doc_3.pdf" or "doc_3-4.pdf".
func splitIndex(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".pdf")
	i := strings.LastIndex(base, "_")
	if i < 0 {
		return 0
	}
	num := base[i+1:]
	if j := strings.Index(num, "-"); j >= 0 {
		num = num[:j]
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0
	}
	return n
}
