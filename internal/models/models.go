// Package models holds the data types shared by the assistant backend and its
// client SDK: transcript messages, file metadata, operation requests and the
// WebSocket envelope.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// MessageType classifies a transcript entry.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageSystem    MessageType = "system"
	MessageError     MessageType = "error"
)

// OperationType names a PDF transformation the assistant can run.
type OperationType string

const (
	OpExtractPages OperationType = "extract_pages"
	OpMergePDFs    OperationType = "merge_pdfs"
	OpSplitPDF     OperationType = "split_pdf"
	OpRotatePages  OperationType = "rotate_pages"
	OpCompressPDF  OperationType = "compress_pdf"
	OpAddWatermark OperationType = "add_watermark"
	OpExtractText  OperationType = "extract_text"
)

// AllOperations lists every supported operation in catalogue order.
var AllOperations = []OperationType{
	OpExtractPages,
	OpMergePDFs,
	OpSplitPDF,
	OpRotatePages,
	OpCompressPDF,
	OpAddWatermark,
	OpExtractText,
}

// Valid reports whether t is a supported operation.
func (t OperationType) Valid() bool {
	for _, op := range AllOperations {
		if op == t {
			return true
		}
	}
	return false
}

// OperationStatus is the lifecycle state of a PDF operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	ID              string           `json:"id"`
	Content         string           `json:"content"`
	MessageType     MessageType      `json:"message_type"`
	Timestamp       time.Time        `json:"timestamp"`
	SessionID       string           `json:"session_id"`
	OperationResult *OperationResult `json:"operation_result,omitempty"`

	// Retryable marks client-side synthetic error messages that Retry can clear.
	Retryable bool `json:"retryable,omitempty"`
}

// OperationResult is attached to assistant messages that ran a PDF operation.
type OperationResult struct {
	OperationID   string          `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	ResultFiles   []PDFFileInfo   `json:"result_files,omitempty"`
	ExtractedText string          `json:"extracted_text,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}

// PDFFileInfo describes an uploaded or derived PDF.
type PDFFileInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"file_path"`
	FileSize         int64     `json:"file_size"`
	PageCount        int       `json:"page_count"`
	CreatedAt        time.Time `json:"created_at"`
	ParentID         string    `json:"parent_id,omitempty"`
	IsTemporary      bool      `json:"is_temporary"`
}

// IsPDF reports whether the file is a PDF document. Text extraction results
// live in the same list but cannot be fed to PDF operations.
func (f PDFFileInfo) IsPDF() bool {
	name := f.FilePath
	if name == "" {
		name = f.Name
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// PDFDocuments returns the session files that are PDFs, in order.
func (s *SessionState) PDFDocuments() []PDFFileInfo {
	out := make([]PDFFileInfo, 0, len(s.PDFFiles))
	for _, f := range s.PDFFiles {
		if f.IsPDF() {
			out = append(out, f)
		}
	}
	return out
}

// SessionState is the server-side view of one conversation.
type SessionState struct {
	SessionID    string        `json:"session_id"`
	CurrentPDFID string        `json:"current_pdf_id,omitempty"`
	PDFFiles     []PDFFileInfo `json:"pdf_files"`
	ChatHistory  []ChatMessage `json:"chat_history"`
	CreatedAt    time.Time     `json:"created_at"`
}

// FindFile returns the file with the given id.
func (s *SessionState) FindFile(id string) (PDFFileInfo, bool) {
	for _, f := range s.PDFFiles {
		if f.ID == id {
			return f, true
		}
	}
	return PDFFileInfo{}, false
}

// PDFOperationRequest asks the backend to run an operation directly.
type PDFOperationRequest struct {
	OperationType OperationType  `json:"operation_type" validate:"required"`
	InputPDFIDs   []string       `json:"input_pdf_ids" validate:"required,min=1,dive,required"`
	Parameters    map[string]any `json:"parameters"`
	SessionID     string         `json:"session_id" validate:"required"`
}

// PDFOperationResponse reports the outcome of an operation.
type PDFOperationResponse struct {
	OperationID   string          `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	ResultFiles   []PDFFileInfo   `json:"result_files"`
	ExtractedText string          `json:"extracted_text,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FileUploadResponse is returned by the upload endpoint.
type FileUploadResponse struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"file_size"`
	PageCount  int    `json:"page_count"`
	UploadPath string `json:"upload_path"`
}

// ChatMessageRequest is the body of POST /api/chat/send.
type ChatMessageRequest struct {
	Content   string `json:"content" validate:"required,min=1,max=1000"`
	SessionID string `json:"session_id,omitempty"`
}

// SetCurrentFileRequest is the body of POST /api/files/set-current.
type SetCurrentFileRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	FileID    string `json:"file_id" validate:"required"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// ValidationDetail is one entry of a validation failure body.
type ValidationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ParameterSpec describes the parameters one operation accepts.
type ParameterSpec struct {
	Required []string          `json:"required"`
	Optional []string          `json:"optional"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// OperationInfo is one entry of the operations catalogue.
type OperationInfo struct {
	Type        OperationType `json:"type"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
}
