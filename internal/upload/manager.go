// Package upload manages the lifecycle of the document upload that enables RAG chat.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/MegaGrindStone/quinton-chat/internal/services"
)

// Uploader sends a document to the backend for indexing.
type Uploader interface {
	Upload(ctx context.Context, req services.UploadRequest) (services.UploadResult, error)
}

// Manager owns the upload session: the pending file, its status, and the session id returned by the
// backend. At most one upload is in flight at a time. Manager is safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	uploader Uploader

	file    models.File
	hasFile bool
	session models.UploadSession

	// generation is bumped on every file selection, so the result of an upload started for an
	// older file is dropped.
	generation uint64

	onChange func()

	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

const errLoggerKey = "err"

// WithOnChange registers fn to be called after each status change made by Upload. It is called
// without the manager's lock held, so fn may read the session.
func WithOnChange(fn func()) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}

// NewManager creates a Manager in the idle state with no file selected.
func NewManager(uploader Uploader, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		uploader: uploader,
		session:  models.UploadSession{Status: models.UploadStatusIdle},
		logger:   logger.With(slog.String("module", "upload")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}

// SelectFile records file as the pending document and returns the manager to idle. Any previous
// session id and status message are cleared, and the result of an upload still in flight will be
// discarded.
func (m *Manager) SelectFile(file models.File) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.file = file
	m.hasFile = true
	m.session = models.UploadSession{
		Status:   models.UploadStatusIdle,
		FileName: file.Name,
	}

	m.logger.Debug("File selected", slog.String("file", file.Name), slog.Int64("size", file.Size))
}

// Upload sends the pending file to the backend. It requires a selected file and an API key. On
// success the session becomes ready and carries the backend's session id; on failure it moves to
// the error state with a readable reason, and the returned error describes the failure.
//
// Upload returns models.ErrUploadInProgress without sending anything while another upload is
// running, and models.ErrAlreadyUploaded when the pending file is already indexed.
func (m *Manager) Upload(ctx context.Context, cfg models.RequestConfig) error {
	m.mu.Lock()
	switch {
	case m.session.Status == models.UploadStatusUploading:
		m.mu.Unlock()
		return models.ErrUploadInProgress
	case m.session.Status == models.UploadStatusReady:
		m.mu.Unlock()
		return models.ErrAlreadyUploaded
	case !m.hasFile || m.file.Open == nil:
		m.mu.Unlock()
		return models.ErrNoFile
	case cfg.APIKey == "":
		m.mu.Unlock()
		return models.ErrMissingAPIKey
	}

	file := m.file
	gen := m.generation
	m.session.Status = models.UploadStatusUploading
	m.session.StatusMessage = fmt.Sprintf("Uploading %s...", file.Name)
	m.mu.Unlock()
	m.notify()

	res, err := m.uploader.Upload(ctx, services.UploadRequest{File: file, APIKey: cfg.APIKey})

	err = m.settle(gen, file, res, err)
	if !errors.Is(err, models.ErrSuperseded) {
		m.notify()
	}
	return err
}

func (m *Manager) settle(gen uint64, file models.File, res services.UploadResult, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		m.logger.Debug("Discarding upload result of a replaced file", slog.String("file", file.Name))
		return models.ErrSuperseded
	}

	if err != nil {
		m.logger.Error("Upload failed",
			slog.String("file", file.Name),
			slog.String(errLoggerKey, err.Error()))
		m.session.Status = models.UploadStatusError
		m.session.StatusMessage = models.DisplayMessage(err)
		return fmt.Errorf("failed to upload %s: %w", file.Name, err)
	}

	m.session = models.UploadSession{
		ID:            res.SessionID,
		Status:        models.UploadStatusReady,
		StatusMessage: res.Message,
		FileName:      file.Name,
		Chunks:        res.ChunksCount,
	}
	m.logger.Info("Document ready",
		slog.String("file", file.Name),
		slog.Int("chunks", res.ChunksCount))

	return nil
}

// Session returns a snapshot of the upload session.
func (m *Manager) Session() models.UploadSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session
}

// Ready reports whether a document is indexed and RAG chat is available.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session.Status == models.UploadStatusReady
}

// SessionID returns the backend session id, empty unless the session is ready.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session.ID
}
