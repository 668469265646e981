package pdf

import "github.com/a3tai/pdf-assistant/internal/models"

var catalogue = []models.OperationInfo{
	{Type: models.OpExtractPages, Name: "Extract pages", Description: "Copy selected pages into a new PDF"},
	{Type: models.OpMergePDFs, Name: "Merge PDFs", Description: "Combine every PDF in the session into one document"},
	{Type: models.OpSplitPDF, Name: "Split PDF", Description: "Split a PDF into parts of N pages each"},
	{Type: models.OpRotatePages, Name: "Rotate pages", Description: "Rotate pages by 90, 180 or 270 degrees"},
	{Type: models.OpCompressPDF, Name: "Compress PDF", Description: "Optimize a PDF to reduce its size"},
	{Type: models.OpAddWatermark, Name: "Add watermark", Description: "Stamp a text watermark on every page"},
	{Type: models.OpExtractText, Name: "Extract text", Description: "Extract the plain text of selected pages"},
}

var parameterSpecs = map[models.OperationType]models.ParameterSpec{
	models.OpExtractPages: {
		Required: []string{"pages"},
		Optional: []string{"output_name"},
		Notes: map[string]string{
			"pages":       "List of 1-based page numbers, e.g. [1, 2, 5]",
			"output_name": "Name for the output file",
		},
	},
	models.OpMergePDFs: {
		Optional: []string{"output_name"},
		Notes:    map[string]string{"output_name": "Name for the merged file"},
	},
	models.OpSplitPDF: {
		Optional: []string{"pages_per_file"},
		Notes:    map[string]string{"pages_per_file": "Number of pages per part (default 1)"},
	},
	models.OpRotatePages: {
		Required: []string{"rotation"},
		Optional: []string{"pages", "output_name"},
		Notes: map[string]string{
			"rotation": "90, 180 or 270",
			"pages":    "Pages to rotate (default: all pages)",
		},
	},
	models.OpCompressPDF: {
		Optional: []string{"output_name"},
	},
	models.OpAddWatermark: {
		Required: []string{"watermark_text"},
		Optional: []string{"position", "opacity", "font_size", "color", "output_name"},
		Notes: map[string]string{
			"position":  "center, top-left, top-right, bottom-left or bottom-right",
			"opacity":   "0.0 to 1.0 (default 0.3)",
			"font_size": "Font size in points (default 48)",
			"color":     "Hex color like #808080 or a basic color name",
		},
	},
	models.OpExtractText: {
		Optional: []string{"page_numbers", "start_page", "end_page"},
		Notes: map[string]string{
			"page_numbers": "Pages to extract (default: all pages)",
			"start_page":   "First page of a range (1-based)",
			"end_page":     "Last page of a range (1-based)",
		},
	},
}

// Operations returns the operation catalogue.
func Operations() []models.OperationInfo {
	out := make([]models.OperationInfo, len(catalogue))
	copy(out, catalogue)
	return out
}

// Parameters returns the parameter spec for op.
func Parameters(op models.OperationType) (models.ParameterSpec, bool) {
	spec, ok := parameterSpecs[op]
	return spec, ok
}
