package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
)

// Backend issues requests to the chat backend. It owns no conversation state: every call carries
// everything the backend needs, including the caller's API key.
type Backend struct {
	baseURL string

	client *http.Client

	logger *slog.Logger
}

// EndpointKind selects the backend endpoint a payload is sent to.
type EndpointKind int

const (
	// EndpointDirectChat is the plain chat endpoint, driven by a developer prompt.
	EndpointDirectChat EndpointKind = iota
	// EndpointRAGChat is the chat endpoint scoped to an uploaded document.
	EndpointRAGChat
	// EndpointUpload accepts a document and returns the session id that enables RAG chat.
	EndpointUpload
	// EndpointHealth reports whether the backend is up.
	EndpointHealth
)

// Path returns the fixed endpoint path of the kind.
func (k EndpointKind) Path() string {
	switch k {
	case EndpointDirectChat:
		return "/api/chat"
	case EndpointRAGChat:
		return "/api/rag-chat"
	case EndpointUpload:
		return "/api/upload-pdf"
	case EndpointHealth:
		return "/api/health"
	default:
		return ""
	}
}

func (k EndpointKind) String() string {
	switch k {
	case EndpointDirectChat:
		return "direct_chat"
	case EndpointRAGChat:
		return "rag_chat"
	case EndpointUpload:
		return "upload"
	case EndpointHealth:
		return "health"
	default:
		return "unknown"
	}
}

// Payload is a typed request body. Its kind decides the endpoint.
type Payload interface {
	Kind() EndpointKind
	validate() error
}

// ChatRequest is the body of a direct chat request.
type ChatRequest struct {
	DeveloperMessage string `json:"developer_message"`
	UserMessage      string `json:"user_message"`
	Model            string `json:"model"`
	APIKey           string `json:"api_key"`
}

// RAGChatRequest is the body of a document-scoped chat request. It has no developer message: the
// backend builds the system prompt from the document context.
type RAGChatRequest struct {
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
	Model       string `json:"model"`
	APIKey      string `json:"api_key"`
}

// UploadRequest carries the document to index.
type UploadRequest struct {
	File   models.File
	APIKey string
}

// HealthRequest asks the backend for its status.
type HealthRequest struct{}

// UploadResult is the backend's answer to a successful upload.
type UploadResult struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	ChunksCount int    `json:"chunks_count"`
}

// Response is the result of Send. Body is set for the chat kinds and must be closed by the caller;
// Upload is set for EndpointUpload.
type Response struct {
	Kind       EndpointKind
	StatusCode int

	Body   io.ReadCloser
	Upload UploadResult
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

const maxErrorBodySize = 4096

// NewBackend creates a Backend sending requests to baseURL, such as "http://localhost:8000". If
// client is nil, a client without timeout is used, as chat responses stream for as long as the
// model writes.
func NewBackend(baseURL string, client *http.Client, logger *slog.Logger) Backend {
	if client == nil {
		client = &http.Client{}
	}
	return Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With(slog.String("module", "backend")),
	}
}

// Kind implements Payload.
func (ChatRequest) Kind() EndpointKind { return EndpointDirectChat }

// Kind implements Payload.
func (RAGChatRequest) Kind() EndpointKind { return EndpointRAGChat }

// Kind implements Payload.
func (UploadRequest) Kind() EndpointKind { return EndpointUpload }

// Kind implements Payload.
func (HealthRequest) Kind() EndpointKind { return EndpointHealth }

func (r ChatRequest) validate() error {
	if r.APIKey == "" {
		return models.ErrMissingAPIKey
	}
	if strings.TrimSpace(r.UserMessage) == "" {
		return models.ErrEmptyMessage
	}
	return nil
}

func (r RAGChatRequest) validate() error {
	if r.APIKey == "" {
		return models.ErrMissingAPIKey
	}
	if strings.TrimSpace(r.UserMessage) == "" {
		return models.ErrEmptyMessage
	}
	if r.SessionID == "" {
		return models.ValidationError("session id is required for document chat")
	}
	return nil
}

func (r UploadRequest) validate() error {
	if r.APIKey == "" {
		return models.ErrMissingAPIKey
	}
	if r.File.Open == nil {
		return models.ErrNoFile
	}
	return nil
}

func (HealthRequest) validate() error { return nil }

// Send dispatches payload to its endpoint. For the chat kinds the response body is returned
// unread and treated as an opaque text stream, whatever content type the backend declares.
//
// Failures are returned as *models.Error: KindValidation when the payload is incomplete (nothing is
// sent), KindHTTPStatus for non-2xx answers, KindNetwork when no response arrived, KindCancelled
// when ctx was cancelled, and KindUnknown otherwise.
func (b Backend) Send(ctx context.Context, payload Payload) (*Response, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}

	req, err := b.newRequest(ctx, payload)
	if err != nil {
		return nil, &models.Error{Kind: models.KindUnknown, Message: "error creating request", Cause: err}
	}

	kind := payload.Kind()
	b.logger.Debug("Sending request",
		slog.String("endpoint", kind.String()),
		slog.String("path", req.URL.Path))

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &models.Error{Kind: models.KindCancelled, Message: "request cancelled", Cause: err}
		}
		return nil, &models.Error{Kind: models.KindNetwork, Message: "error sending request", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		detail := errorDetail(body)
		b.logger.Debug("Request failed",
			slog.String("endpoint", kind.String()),
			slog.Int("status", resp.StatusCode),
			slog.String("detail", detail))
		return nil, &models.Error{
			Kind:    models.KindHTTPStatus,
			Message: "unexpected status code",
			Code:    resp.StatusCode,
			Detail:  detail,
		}
	}

	res := &Response{Kind: kind, StatusCode: resp.StatusCode}
	switch kind {
	case EndpointDirectChat, EndpointRAGChat:
		res.Body = resp.Body
		return res, nil
	case EndpointUpload:
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&res.Upload); err != nil {
			return nil, &models.Error{Kind: models.KindUnknown, Message: "error decoding upload response", Cause: err}
		}
		if res.Upload.SessionID == "" {
			return nil, &models.Error{Kind: models.KindUnknown, Message: "upload response has no session id"}
		}
		return res, nil
	default:
		resp.Body.Close()
		return res, nil
	}
}

// Chat sends a direct chat request and returns the streamed reply body.
func (b Backend) Chat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	res, err := b.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// RAGChat sends a document-scoped chat request and returns the streamed reply body.
func (b Backend) RAGChat(ctx context.Context, req RAGChatRequest) (io.ReadCloser, error) {
	res, err := b.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// Upload sends a document to be indexed and returns the session id the backend assigned to it.
func (b Backend) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	res, err := b.Send(ctx, req)
	if err != nil {
		return UploadResult{}, err
	}
	return res.Upload, nil
}

// Health returns nil if the backend answers its health check.
func (b Backend) Health(ctx context.Context) error {
	_, err := b.Send(ctx, HealthRequest{})
	return err
}

func (b Backend) newRequest(ctx context.Context, payload Payload) (*http.Request, error) {
	endpoint := b.baseURL + payload.Kind().Path()

	switch p := payload.(type) {
	case HealthRequest:
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	case UploadRequest:
		body, contentType, err := multipartBody(p)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return nil, err
		}
		// The backend reads the key of an upload from the query string; the form field is kept for
		// servers reading it from the body.
		q := req.URL.Query()
		q.Set("api_key", p.APIKey)
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Content-Type", contentType)
		return req, nil
	default:
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/plain")
		return req, nil
	}
}

func multipartBody(p UploadRequest) (*bytes.Buffer, string, error) {
	f, err := p.File.Open()
	if err != nil {
		return nil, "", fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", p.File.Name)
	if err != nil {
		return nil, "", fmt.Errorf("error creating file part: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("error reading file: %w", err)
	}
	if err := mw.WriteField("api_key", p.APIKey); err != nil {
		return nil, "", fmt.Errorf("error writing api key field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing multipart body: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}

// errorDetail extracts a human readable reason from an error body. The backend answers failures
// with {"detail": "..."}; a detail that isn't a string (validation errors) is returned as compact
// JSON, and a body that isn't JSON at all is returned as trimmed text.
func errorDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && len(er.Detail) > 0 {
		var s string
		if err := json.Unmarshal(er.Detail, &s); err == nil {
			return s
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, er.Detail); err == nil {
			return compact.String()
		}
	}
	return strings.TrimSpace(string(body))
}
