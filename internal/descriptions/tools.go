package descriptions

// Tool descriptions shown to MCP clients, with examples of when to call each tool.

const (
	PDFUploadPathDescription = `Add a PDF from the local filesystem to an assistant session.

**When to use:** Before running any operation. Operations only act on files that belong to the session.

**Examples:**
• Start working on a report: "Add /home/me/q3-report.pdf to session demo"
• Collect files to merge: upload each PDF into the same session, then run merge_pdfs

**Notes:** The first file added to a session becomes its current file. Files larger than the configured limit or that are not valid PDFs are rejected.`

	PDFFindLocalDescription = `Search a local directory tree for PDF files by name.

**When to use:** When the user names a document but not its full path, before pdf_upload_path.

**Examples:**
• "Find my tax forms in ~/Documents": directory "~/Documents" expanded, query "tax forms"
• "List the PDFs in the downloads folder": no query

**Notes:** Matching is case-insensitive against file names; every query word must appear in the name. Newest files come first. Files that are empty or over the size limit are skipped.`

	PDFSessionFilesDescription = `List the PDFs in a session, including files produced by earlier operations.

**When to use:** To find file ids for pdf_operation or pdf_extract_text, or to see what an operation produced.

**Examples:**
• "Which files are in session demo?"
• "What did the split produce?" (derived files show the id of the file they came from)

**Notes:** The current file is marked; single-file operations use it when no ids are given.`

	PDFOperationDescription = `Run a PDF operation on files in a session and store the results in the same session.

**When to use:** To extract, merge, split, rotate, compress or watermark PDFs, or to save their text to a file.

**Examples:**
• Keep pages 1-3: operation_type "extract_pages", parameters {"pages": [1, 2, 3]}
• Rotate page 2: operation_type "rotate_pages", parameters {"pages": [2], "rotation": 90}
• Merge everything: operation_type "merge_pdfs" with no input_file_ids
• Stamp a draft: operation_type "add_watermark", parameters {"watermark_text": "DRAFT", "position": "top-right"}

**Notes:** Without input_file_ids, merge_pdfs uses every file and the other operations use the current file. Call pdf_operations for the parameters each operation accepts.`

	PDFOperationsDescription = `List the supported PDF operations with their required and optional parameters.

**When to use:** Before calling pdf_operation with an operation you have not used yet.`

	PDFExtractTextDescription = `Return the plain text of a PDF in a session without creating a new file.

**When to use:** To read or summarize a document, or to check which pages hold the content you want to extract.

**Examples:**
• "What does page 4 of the contract say?": pages [4]
• "Summarize the whole report": no pages

**Notes:** Pages are separated by a page marker. Scanned documents without a text layer return little or no text.`
)

// ToolDescriptions maps tool names to their descriptions.
var ToolDescriptions = map[string]string{
	"pdf_upload_path":   PDFUploadPathDescription,
	"pdf_find_local":    PDFFindLocalDescription,
	"pdf_session_files": PDFSessionFilesDescription,
	"pdf_operation":     PDFOperationDescription,
	"pdf_operations":    PDFOperationsDescription,
	"pdf_extract_text":  PDFExtractTextDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}
