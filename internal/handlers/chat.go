package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
)

// maxUploadSize bounds the document accepted by HandleUpload.
const maxUploadSize = 32 << 20

// HandleChats sends a message of the session to the backend. It accepts the message through the
// "message" form field, together with the optional "api_key", "model" and "personality" fields.
// Empty model or personality fields select the defaults, and an empty key falls back to the
// configured one.
//
// The reply is streamed to the browser through Server-Sent Events, so a successful request is
// answered with 202 Accepted before the backend replies. The handler returns 400 for invalid fields
// and 409 while another reply is streaming.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	if strings.TrimSpace(msg) == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	cfg, ok := m.requestConfig(w, r)
	if !ok {
		return
	}

	if m.controller.State().Busy {
		http.Error(w, models.ErrBusy.Error(), http.StatusConflict)
		return
	}

	// The send outlives the request, the reply reaches the browser through SSE.
	go m.send(msg, cfg)

	w.WriteHeader(http.StatusAccepted)
}

func (m Main) send(msg string, cfg models.RequestConfig) {
	err := m.controller.Send(context.Background(), msg, cfg)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrSuperseded):
		m.logger.Debug("Message discarded")
	case errors.Is(err, models.ErrBusy):
		m.logger.Warn("Message rejected, another reply is streaming")
	default:
		m.logger.Debug("Message failed", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleUpload makes the "file" part of a multipart request the document of the session and
// uploads it to the backend. The conversation is cleared and the session answers in direct mode
// until the backend indexed the document. Progress is pushed through Server-Sent Events.
func (m Main) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		m.logger.Error("Failed to parse upload", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File is required", http.StatusBadRequest)
		return
	}
	defer f.Close()

	cfg, ok := m.requestConfig(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		m.logger.Error("Failed to read upload",
			slog.String("file", header.Filename),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.controller.SelectFile(models.FileFromBytes(header.Filename, data))
	go m.upload(cfg)

	w.WriteHeader(http.StatusAccepted)
}

func (m Main) upload(cfg models.RequestConfig) {
	if err := m.controller.Upload(context.Background(), cfg); err != nil {
		m.logger.Debug("Upload failed", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleReset clears the conversation. An uploaded document stays active.
func (m Main) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.controller.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (m Main) requestConfig(w http.ResponseWriter, r *http.Request) (models.RequestConfig, bool) {
	apiKey := r.FormValue("api_key")
	if apiKey == "" {
		apiKey = m.defaultAPIKey
	}
	if apiKey == "" {
		http.Error(w, models.DisplayMessage(models.ErrMissingAPIKey), http.StatusBadRequest)
		return models.RequestConfig{}, false
	}

	cfg, err := m.catalog.RequestConfig(apiKey, r.FormValue("model"), r.FormValue("personality"))
	if err != nil {
		http.Error(w, models.DisplayMessage(err), http.StatusBadRequest)
		return models.RequestConfig{}, false
	}
	return cfg, true
}
