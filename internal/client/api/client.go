// Package api is the REST client for the PDF assistant backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
)

// DefaultTimeout bounds every request end to end.
const DefaultTimeout = 30 * time.Second

// Client issues one HTTP request per method against the backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the backend at baseURL (e.g. http://localhost:8000).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Files

// UploadFile validates path and uploads it into the session.
func (c *Client) UploadFile(ctx context.Context, sessionID, path string) (*models.FileUploadResponse, error) {
	if err := ValidateUpload(path); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out models.FileUploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/files/upload", w.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFiles returns the session's files.
func (c *Client) ListFiles(ctx context.Context, sessionID string) ([]models.PDFFileInfo, error) {
	var out []models.PDFFileInfo
	if err := c.getJSON(ctx, "/api/files/"+url.PathEscape(sessionID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteFile removes a file from the session and from the server.
func (c *Client) DeleteFile(ctx context.Context, sessionID, fileID string) error {
	path := "/api/files/" + url.PathEscape(fileID) + "?session_id=" + url.QueryEscape(sessionID)
	return c.do(ctx, http.MethodDelete, path, "", nil, nil)
}

// FileInfo returns the metadata of one file.
func (c *Client) FileInfo(ctx context.Context, fileID string) (*models.PDFFileInfo, error) {
	var out models.PDFFileInfo
	if err := c.getJSON(ctx, "/api/files/info/"+url.PathEscape(fileID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCurrentFile makes fileID the session's current file.
func (c *Client) SetCurrentFile(ctx context.Context, sessionID, fileID string) error {
	return c.postJSON(ctx, "/api/files/set-current", models.SetCurrentFileRequest{
		SessionID: sessionID,
		FileID:    fileID,
	}, nil)
}

// DownloadFile streams a file. The caller closes the reader. The returned
// name comes from Content-Disposition and may be empty.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/files/download/"+url.PathEscape(fileID), "", nil)
	if err != nil {
		return nil, "", err
	}

	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = filepath.Base(params["filename"])
	}
	return resp.Body, name, nil
}

// DownloadTo saves a file into dir and returns the written path.
func (c *Client) DownloadTo(ctx context.Context, fileID, dir string) (string, error) {
	body, name, err := c.DownloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fileID + ".pdf"
	}
	path := filepath.Join(dir, name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("cannot create %s: %w", path, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Chat

// SendChat posts a user message and returns the assistant's reply.
func (c *Client) SendChat(ctx context.Context, sessionID, content string) (*models.ChatMessage, error) {
	var out models.ChatMessage
	err := c.postJSON(ctx, "/api/chat/send", models.ChatMessageRequest{
		Content:   content,
		SessionID: sessionID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatHistory returns the session transcript.
func (c *Client) ChatHistory(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	if err := c.getJSON(ctx, "/api/chat/history/"+url.PathEscape(sessionID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearChatHistory empties the session transcript.
func (c *Client) ClearChatHistory(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/history/"+url.PathEscape(sessionID), "", nil, nil)
}

// Operations

// PerformOperation runs an operation directly, without the chat.
func (c *Client) PerformOperation(ctx context.Context, req models.PDFOperationRequest) (*models.PDFOperationResponse, error) {
	var out models.PDFOperationResponse
	if err := c.postJSON(ctx, "/api/pdf/operation", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Operations lists the supported operations.
func (c *Client) Operations(ctx context.Context) ([]models.OperationInfo, error) {
	var out []models.OperationInfo
	if err := c.getJSON(ctx, "/api/pdf/operations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OperationParameters returns the parameters one operation accepts.
func (c *Client) OperationParameters(ctx context.Context, op models.OperationType) (*models.ParameterSpec, error) {
	var out struct {
		Parameters models.ParameterSpec `json:"parameters"`
	}
	if err := c.getJSON(ctx, "/api/pdf/operation/"+url.PathEscape(string(op))+"/parameters", &out); err != nil {
		return nil, err
	}
	return &out.Parameters, nil
}

// OperationStatus returns a previously started operation.
func (c *Client) OperationStatus(ctx context.Context, operationID string) (*models.PDFOperationResponse, error) {
	var out models.PDFOperationResponse
	if err := c.getJSON(ctx, "/api/pdf/operations/"+url.PathEscape(operationID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions

// Session returns the server-side state of a session.
func (c *Client) Session(ctx context.Context, sessionID string) (*models.SessionState, error) {
	var out models.SessionState
	if err := c.getJSON(ctx, "/api/session/"+url.PathEscape(sessionID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession asks the server for a fresh session.
func (c *Client) CreateSession(ctx context.Context) (*models.SessionState, error) {
	var out models.SessionState
	if err := c.do(ctx, http.MethodPost, "/api/session/create", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the backend is up and returns its status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data), out)
}

// do sends the request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response from %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into *APIError.
// On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: data}
	}
	return resp, nil
}
