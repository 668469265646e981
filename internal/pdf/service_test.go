package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf/pdftest"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	return NewService(10*1024*1024, nil), t.TempDir()
}

func input(t *testing.T, dir, name string, pages int) Input {
	t.Helper()
	return Input{Path: pdftest.Write(t, dir, name, pages), Name: name, Pages: pages}
}

func TestInspect(t *testing.T) {
	svc, dir := newTestService(t)
	path := pdftest.Write(t, dir, "three.pdf", 3)

	stats, err := svc.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pages)
	assert.Positive(t, stats.Size)
}

func TestPerform_ExtractPages(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "report.pdf", 3)

	res, err := svc.Perform(context.Background(), models.OpExtractPages, []Input{in},
		map[string]any{"pages": []any{float64(1), float64(3)}}, dir)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	out := res.Outputs[0]
	assert.Equal(t, "report_pages.pdf", out.Name)
	assert.Equal(t, 2, out.Pages)
	assert.FileExists(t, out.Path)
}

func TestPerform_ExtractPagesOutOfRange(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "report.pdf", 2)

	_, err := svc.Perform(context.Background(), models.OpExtractPages, []Input{in},
		map[string]any{"pages": []any{float64(5)}}, dir)
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func TestPerform_Merge(t *testing.T) {
	svc, dir := newTestService(t)
	a := input(t, dir, "a.pdf", 2)
	b := input(t, dir, "b.pdf", 3)

	res, err := svc.Perform(context.Background(), models.OpMergePDFs, []Input{a, b},
		map[string]any{"output_name": "combined"}, dir)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "combined.pdf", res.Outputs[0].Name)
	assert.Equal(t, 5, res.Outputs[0].Pages)
}

func TestPerform_MergeNeedsTwoInputs(t *testing.T) {
	svc, dir := newTestService(t)
	a := input(t, dir, "a.pdf", 1)

	_, err := svc.Perform(context.Background(), models.OpMergePDFs, []Input{a}, nil, dir)
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func TestPerform_Split(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "book.pdf", 5)

	res, err := svc.Perform(context.Background(), models.OpSplitPDF, []Input{in},
		map[string]any{"pages_per_file": float64(2)}, dir)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 3)

	assert.Equal(t, "book_part_1.pdf", res.Outputs[0].Name)
	assert.Equal(t, 2, res.Outputs[0].Pages)
	assert.Equal(t, 2, res.Outputs[1].Pages)
	assert.Equal(t, 1, res.Outputs[2].Pages)
}

func TestPerform_Rotate(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "scan.pdf", 2)

	res, err := svc.Perform(context.Background(), models.OpRotatePages, []Input{in},
		map[string]any{"rotation": float64(90), "pages": []any{float64(1)}}, dir)
	require.NoError(t, err)
	assert.Equal(t, "scan_rotated.pdf", res.Outputs[0].Name)
	assert.Equal(t, 2, res.Outputs[0].Pages)
}

func TestPerform_RotateRejectsOddAngle(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "scan.pdf", 1)

	_, err := svc.Perform(context.Background(), models.OpRotatePages, []Input{in},
		map[string]any{"rotation": float64(45)}, dir)
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func TestPerform_Compress(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "big.pdf", 2)

	res, err := svc.Perform(context.Background(), models.OpCompressPDF, []Input{in}, nil, dir)
	require.NoError(t, err)
	assert.Equal(t, "big_compressed.pdf", res.Outputs[0].Name)
	assert.Equal(t, 2, res.Outputs[0].Pages)
}

func TestPerform_Watermark(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "draft.pdf", 1)

	res, err := svc.Perform(context.Background(), models.OpAddWatermark, []Input{in},
		map[string]any{"watermark_text": "CONFIDENTIAL", "position": "top-right"}, dir)
	require.NoError(t, err)
	assert.Equal(t, "draft_watermarked.pdf", res.Outputs[0].Name)
	assert.Equal(t, 1, res.Outputs[0].Pages)
}

func TestPerform_WatermarkNeedsText(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "draft.pdf", 1)

	_, err := svc.Perform(context.Background(), models.OpAddWatermark, []Input{in},
		map[string]any{"watermark_text": "   "}, dir)
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func TestPerform_ExtractText(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "notes.pdf", 3)

	res, err := svc.Perform(context.Background(), models.OpExtractText, []Input{in},
		map[string]any{"start_page": float64(2), "end_page": float64(3)}, dir)
	require.NoError(t, err)

	assert.Contains(t, res.Text, "Page 2 Text")
	assert.Contains(t, res.Text, "Page 3 Text")
	assert.NotContains(t, res.Text, "Page 1 Text")

	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "notes_text.txt", res.Outputs[0].Name)
	data, err := os.ReadFile(res.Outputs[0].Path)
	require.NoError(t, err)
	assert.Equal(t, res.Text, string(data))
}

func TestPerform_Unsupported(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "x.pdf", 1)

	_, err := svc.Perform(context.Background(), "add_bookmarks", []Input{in}, nil, dir)
	assert.True(t, errors.Is(err, ErrUnsupportedOperation))
}

func TestPerform_CanceledContext(t *testing.T) {
	svc, dir := newTestService(t)
	in := input(t, dir, "x.pdf", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Perform(ctx, models.OpCompressPDF, []Input{in}, nil, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatermarkDescription(t *testing.T) {
	desc, err := WatermarkDescription(map[string]any{
		"position": "bottom-left", "opacity": 0.5, "font_size": float64(24), "color": "red",
	})
	require.NoError(t, err)
	assert.Contains(t, desc, "points:24")
	assert.Contains(t, desc, "position:bl")
	assert.Contains(t, desc, "opacity:0.50")
	assert.Contains(t, desc, "fillcolor:#FF0000")
	assert.Contains(t, desc, "rotation:0")

	desc, err = WatermarkDescription(map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, desc, "position:c")
	assert.False(t, strings.Contains(desc, "rotation"))

	_, err = WatermarkDescription(map[string]any{"opacity": 2.0})
	assert.Error(t, err)
	_, err = WatermarkDescription(map[string]any{"position": "middle"})
	assert.Error(t, err)
	_, err = WatermarkDescription(map[string]any{"color": "#12"})
	assert.Error(t, err)
}

func TestOutputNameAndSplitIndex(t *testing.T) {
	assert.Equal(t, "report_rotated.pdf", outputName(nil, "report.pdf", "_rotated.pdf"))
	assert.Equal(t, "merged.pdf", outputName(nil, "", "merged.pdf"))
	assert.Equal(t, "final.pdf", outputName(map[string]any{"output_name": "../final"}, "x.pdf", "_pages.pdf"))

	assert.Equal(t, 3, splitIndex(filepath.Join("tmp", "abc-def_3.pdf")))
	assert.Equal(t, 11, splitIndex("abc_11-12.pdf"))
	assert.Equal(t, 0, splitIndex("nounderscore.pdf"))
}
