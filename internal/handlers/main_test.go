package handlers_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/quinton-chat/internal/handlers"
	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/MegaGrindStone/quinton-chat/internal/session"
)

type mockController struct {
	mu        sync.Mutex
	state     session.State
	listeners []func(session.Event)

	sends    chan models.RequestConfig
	uploads  chan models.RequestConfig
	selected []models.File
	resets   int
}

func newMockController() *mockController {
	return &mockController{
		sends:   make(chan models.RequestConfig, 10),
		uploads: make(chan models.RequestConfig, 10),
	}
}

func newMain(t *testing.T, ctrl *mockController, apiKey string) handlers.Main {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	main, err := handlers.NewMain(ctrl, models.DefaultCatalog(), apiKey, logger)
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}
	return main
}

func TestNewMain(t *testing.T) {
	ctrl := newMockController()
	main := newMain(t, ctrl, "")

	if len(ctrl.listeners) != 1 {
		t.Errorf("NewMain() subscribed %d listeners, want 1", len(ctrl.listeners))
	}

	if main.Shutdown(context.Background()) != nil {
		t.Error("Shutdown() should not return error")
	}
}

func TestHandleHome(t *testing.T) {
	ctrl := newMockController()
	ctrl.state = session.State{
		Mode: session.ModeDirect,
		Messages: []models.Message{
			{ID: "1", Role: models.RoleUser, Content: "Is <b>this</b> bold?"},
			{ID: "2", Role: models.RoleAssistant, Content: "It is **bold**."},
		},
		Upload: models.UploadSession{Status: models.UploadStatusError, StatusMessage: "file too large", FileName: "huge.pdf"},
		Error:  "file too large",
	}
	main := newMain(t, ctrl, "")

	tests := []struct {
		name       string
		method     string
		url        string
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "Home page",
			method:     http.MethodGet,
			url:        "/",
			wantStatus: http.StatusOK,
			wantBody: []string{
				"gpt-4.1-mini",
				"Quinton makes it simple",
				"Is &lt;b&gt;this&lt;/b&gt; bold?",
				"<strong>bold</strong>",
				"huge.pdf",
				"file too large",
			},
		},
		{
			name:       "Invalid method",
			method:     http.MethodPost,
			url:        "/",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Unknown path",
			method:     http.MethodGet,
			url:        "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, nil)
			w := httptest.NewRecorder()

			main.HandleHome(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleHome() status = %v, want %v", w.Code, tt.wantStatus)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(w.Body.String(), want) {
					t.Errorf("HandleHome() body = %v, want to contain %v", w.Body.String(), want)
				}
			}
		})
	}
}

func TestHandleChats(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		form       string
		apiKey     string
		busy       bool
		wantStatus int
		wantConfig models.RequestConfig
	}{
		{
			name:       "Invalid method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Empty message",
			method:     http.MethodPost,
			form:       "message=+++&api_key=sk-form",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing API key",
			method:     http.MethodPost,
			form:       "message=Hello",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown model",
			method:     http.MethodPost,
			form:       "message=Hello&api_key=sk-form&model=gpt-99",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Busy",
			method:     http.MethodPost,
			form:       "message=Hello&api_key=sk-form",
			busy:       true,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Form key",
			method:     http.MethodPost,
			form:       "message=Hello&api_key=sk-form&model=gpt-4.1-nano&personality=expert",
			wantStatus: http.StatusAccepted,
			wantConfig: models.RequestConfig{APIKey: "sk-form", Model: "gpt-4.1-nano"},
		},
		{
			name:       "Configured key",
			method:     http.MethodPost,
			form:       "message=Hello",
			apiKey:     "sk-config",
			wantStatus: http.StatusAccepted,
			wantConfig: models.RequestConfig{APIKey: "sk-config", Model: "gpt-4.1-mini"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newMockController()
			ctrl.state.Busy = tt.busy
			main := newMain(t, ctrl, tt.apiKey)

			req := httptest.NewRequest(tt.method, "/chats", strings.NewReader(tt.form))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()

			main.HandleChats(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleChats() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusAccepted {
				return
			}

			select {
			case cfg := <-ctrl.sends:
				if cfg.APIKey != tt.wantConfig.APIKey || cfg.Model != tt.wantConfig.Model {
					t.Errorf("Send() config = %+v, want %+v", cfg, tt.wantConfig)
				}
				if cfg.DeveloperPrompt == "" {
					t.Error("Send() config has no developer prompt")
				}
			case <-time.After(time.Second):
				t.Error("HandleChats() did not send the message")
			}
		})
	}
}

func TestHandleUpload(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		fileName   string
		apiKey     string
		wantStatus int
	}{
		{
			name:       "Invalid method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Missing file",
			method:     http.MethodPost,
			apiKey:     "sk-form",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing API key",
			method:     http.MethodPost,
			fileName:   "doc.pdf",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Upload",
			method:     http.MethodPost,
			fileName:   "doc.pdf",
			apiKey:     "sk-form",
			wantStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newMockController()
			main := newMain(t, ctrl, "")

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			if tt.fileName != "" {
				fw, err := mw.CreateFormFile("file", tt.fileName)
				if err != nil {
					t.Fatal(err)
				}
				if _, err := fw.Write([]byte("%PDF-1.4")); err != nil {
					t.Fatal(err)
				}
			}
			if tt.apiKey != "" {
				if err := mw.WriteField("api_key", tt.apiKey); err != nil {
					t.Fatal(err)
				}
			}
			if err := mw.Close(); err != nil {
				t.Fatal(err)
			}

			req := httptest.NewRequest(tt.method, "/upload", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := httptest.NewRecorder()

			main.HandleUpload(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleUpload() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusAccepted {
				if len(ctrl.selectedFiles()) != 0 {
					t.Error("HandleUpload() selected a file on a rejected request")
				}
				return
			}

			select {
			case cfg := <-ctrl.uploads:
				if cfg.APIKey != tt.apiKey {
					t.Errorf("Upload() api key = %v, want %v", cfg.APIKey, tt.apiKey)
				}
			case <-time.After(time.Second):
				t.Fatal("HandleUpload() did not upload the file")
			}

			files := ctrl.selectedFiles()
			if len(files) != 1 || files[0].Name != tt.fileName || files[0].Size != int64(len("%PDF-1.4")) {
				t.Errorf("SelectFile() files = %+v, want one %v", files, tt.fileName)
			}
		})
	}
}

func TestHandleReset(t *testing.T) {
	ctrl := newMockController()
	main := newMain(t, ctrl, "")

	w := httptest.NewRecorder()
	main.HandleReset(w, httptest.NewRequest(http.MethodGet, "/reset", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("HandleReset() status = %v, want %v", w.Code, http.StatusMethodNotAllowed)
	}

	w = httptest.NewRecorder()
	main.HandleReset(w, httptest.NewRequest(http.MethodPost, "/reset", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("HandleReset() status = %v, want %v", w.Code, http.StatusNoContent)
	}
	if ctrl.resets != 1 {
		t.Errorf("Reset() called %d times, want 1", ctrl.resets)
	}
}

func TestHandleSSEPublishesEvents(t *testing.T) {
	ctrl := newMockController()
	main := newMain(t, ctrl, "")

	srv := httptest.NewServer(http.HandlerFunc(main.HandleSSE))
	defer srv.Close()
	defer func() {
		if err := main.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	lines := make(chan string, 100)
	go func() {
		defer close(lines)
		resp, err := http.Get(srv.URL)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	st := session.State{
		Messages: []models.Message{{ID: "a", Role: models.RoleAssistant, Content: "**hi**"}},
	}

	// The client may subscribe after the first events, so keep emitting until one arrives.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(2 * time.Second)
	gotType := false
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("SSE stream closed before the event arrived")
			}
			if strings.HasPrefix(line, "event:") && strings.Contains(line, "messages") {
				gotType = true
			}
			if gotType && strings.Contains(line, "<strong>hi</strong>") {
				return
			}
		case <-ticker.C:
			ctrl.emit(session.Event{Kind: session.EventMessagesChanged, State: st})
		case <-timeout:
			t.Fatal("SSE stream did not deliver the messages event")
		}
	}
}

func (m *mockController) Send(_ context.Context, _ string, cfg models.RequestConfig) error {
	m.sends <- cfg
	return nil
}

func (m *mockController) Upload(_ context.Context, cfg models.RequestConfig) error {
	m.uploads <- cfg
	return nil
}

func (m *mockController) SelectFile(file models.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = append(m.selected, file)
}

func (m *mockController) selectedFiles() []models.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

func (m *mockController) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *mockController) State() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockController) Subscribe(fn func(session.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	return func() {}
}

func (m *mockController) emit(e session.Event) {
	m.mu.Lock()
	ls := m.listeners
	m.mu.Unlock()
	for _, fn := range ls {
		fn(e)
	}
}
