// Package session drives a chat session: it decides for every message whether it goes to the
// direct chat or the document chat, streams the reply into the conversation, and keeps the
// conversation consistent with the uploaded document.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/quinton-chat/internal/conversation"
	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/MegaGrindStone/quinton-chat/internal/services"
	"github.com/MegaGrindStone/quinton-chat/internal/stream"
	"github.com/MegaGrindStone/quinton-chat/internal/upload"
)

// Dispatcher sends requests to the chat backend.
type Dispatcher interface {
	Chat(ctx context.Context, req services.ChatRequest) (io.ReadCloser, error)
	RAGChat(ctx context.Context, req services.RAGChatRequest) (io.ReadCloser, error)
	upload.Uploader
}

// Mode tells which endpoint the next message goes to.
type Mode string

const (
	// ModeDirect sends messages to the plain chat endpoint with the personality prompt.
	ModeDirect Mode = "direct"
	// ModeRAG sends messages to the document chat endpoint with the upload session id.
	ModeRAG Mode = "rag"
)

// EventKind identifies what changed in the session.
type EventKind int

const (
	// EventMessagesChanged is emitted after every change to the conversation.
	EventMessagesChanged EventKind = iota
	// EventUploadChanged is emitted after every change to the upload session.
	EventUploadChanged
	// EventBusyChanged is emitted when a send starts or settles.
	EventBusyChanged
	// EventErrorChanged is emitted when the displayed error is set or cleared.
	EventErrorChanged
	// EventInputCleared asks the UI to clear its message input.
	EventInputCleared
)

// State is a snapshot of the session, ready to be rendered.
type State struct {
	Mode     Mode
	Messages []models.Message
	Upload   models.UploadSession
	Busy     bool
	Error    string
}

// Event is delivered to subscribers after a change. State is the snapshot taken right after it.
type Event struct {
	Kind  EventKind
	State State
}

type listener struct {
	id int
	fn func(Event)
}

// Controller owns the conversation and the upload session of one chat, and routes every message
// to the right endpoint. At most one message is in flight: a Send while another is streaming is
// rejected.
//
// When a new file is selected, or the session is reset, while a reply is still streaming, the
// request is cancelled and whatever it still produces is discarded.
type Controller struct {
	mu sync.Mutex

	dispatcher Dispatcher
	store      *conversation.Store
	uploads    *upload.Manager

	busy   bool
	errMsg string

	// generation is bumped whenever the conversation is discarded; a send only writes to the
	// conversation while the generation it started with is current.
	generation uint64
	cancel     context.CancelFunc

	listeners  []listener
	listenerID int

	logger *slog.Logger
}

const errLoggerKey = "err"

// New creates a Controller in direct mode with an empty conversation and no document.
func New(dispatcher Dispatcher, logger *slog.Logger) *Controller {
	c := &Controller{
		dispatcher: dispatcher,
		store:      conversation.NewStore(),
		logger:     logger.With(slog.String("module", "session")),
	}
	c.uploads = upload.NewManager(dispatcher, logger, upload.WithOnChange(func() {
		c.emit(EventUploadChanged)
	}))
	return c
}

// Subscribe registers fn to receive every event. Events are delivered synchronously on the
// goroutine that made the change, without any lock held. The returned func removes fn.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listenerID++
	id := c.listenerID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
	}
}

// Mode returns ModeRAG when a document is ready, ModeDirect otherwise.
func (c *Controller) Mode() Mode {
	if c.uploads.Ready() {
		return ModeRAG
	}
	return ModeDirect
}

// Busy reports whether a reply is streaming.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.busy
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	up := c.uploads.Session()
	mode := ModeDirect
	if up.Status == models.UploadStatusReady {
		mode = ModeRAG
	}
	return State{
		Mode:     mode,
		Messages: c.store.Snapshot(),
		Upload:   up,
		Busy:     c.busy,
		Error:    c.errMsg,
	}
}

// Send appends text to the conversation as a user message and streams the backend's reply into
// an assistant message. In RAG mode the request carries the upload session id; in direct mode it
// carries the personality prompt of cfg. Send blocks until the reply is complete or fails.
//
// Empty text or a missing API key fail validation before anything changes. A failed request leaves
// the user message in place and records a displayable error; a reply cut short by invalid bytes
// keeps the text received so far. Send returns models.ErrBusy if another reply is streaming and
// models.ErrSuperseded if the conversation was discarded while streaming.
func (c *Controller) Send(ctx context.Context, text string, cfg models.RequestConfig) error {
	if strings.TrimSpace(text) == "" {
		return c.fail(models.ErrEmptyMessage)
	}
	if cfg.APIKey == "" {
		return c.fail(models.ErrMissingAPIKey)
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return models.ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.busy = true
	c.cancel = cancel
	c.errMsg = ""
	gen := c.generation
	sessionID := c.uploads.SessionID()
	c.store.AppendUser(text)
	c.mu.Unlock()

	c.emit(EventBusyChanged, EventErrorChanged, EventMessagesChanged, EventInputCleared)

	err := c.stream(ctx, gen, text, sessionID, cfg)

	c.mu.Lock()
	c.busy = false
	c.cancel = nil
	superseded := gen != c.generation
	if err != nil && !superseded {
		c.errMsg = models.DisplayMessage(err)
	}
	c.mu.Unlock()

	if superseded {
		c.emit(EventBusyChanged)
		return models.ErrSuperseded
	}
	if err != nil {
		c.logger.Error("Failed to complete message",
			slog.String("mode", string(modeFor(sessionID))),
			slog.String(errLoggerKey, err.Error()))
		c.emit(EventBusyChanged, EventErrorChanged)
		return err
	}
	c.emit(EventBusyChanged)
	return nil
}

func (c *Controller) stream(
	ctx context.Context,
	gen uint64,
	text, sessionID string,
	cfg models.RequestConfig,
) error {
	var body io.ReadCloser
	var err error
	if sessionID != "" {
		body, err = c.dispatcher.RAGChat(ctx, services.RAGChatRequest{
			SessionID:   sessionID,
			UserMessage: text,
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
		})
	} else {
		body, err = c.dispatcher.Chat(ctx, services.ChatRequest{
			DeveloperMessage: cfg.DeveloperPrompt,
			UserMessage:      text,
			Model:            cfg.Model,
			APIKey:           cfg.APIKey,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer body.Close()

	merged := false
	for cumulative, err := range stream.Fragments(body) {
		if err != nil {
			return fmt.Errorf("failed to read reply: %w", err)
		}
		if !c.merge(gen, cumulative) {
			return models.ErrSuperseded
		}
		merged = true
	}

	// A reply without any text still gets its (empty) assistant message.
	if !merged && !c.merge(gen, "") {
		return models.ErrSuperseded
	}
	return nil
}

func (c *Controller) merge(gen uint64, cumulative string) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	c.store.BeginOrExtendAssistant(cumulative)
	c.mu.Unlock()

	c.emit(EventMessagesChanged)
	return true
}

// SelectFile makes file the pending document. The previous upload session and the conversation
// are discarded, so the session falls back to direct mode until the file is uploaded. A reply
// still streaming is cancelled.
func (c *Controller) SelectFile(file models.File) {
	c.mu.Lock()
	c.discardLocked()
	c.uploads.SelectFile(file)
	c.mu.Unlock()

	c.emit(EventUploadChanged, EventMessagesChanged, EventErrorChanged)
}

// Reset clears the conversation and the displayed error. The upload session is kept, so a ready
// document stays available. A reply still streaming is cancelled.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.discardLocked()
	c.mu.Unlock()

	c.emit(EventMessagesChanged, EventErrorChanged)
}

func (c *Controller) discardLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
	}
	c.store.Clear()
	c.errMsg = ""
}

// Upload sends the pending file to the backend. On failure the reason is recorded as the displayed
// error. See upload.Manager.Upload for the rules.
func (c *Controller) Upload(ctx context.Context, cfg models.RequestConfig) error {
	err := c.uploads.Upload(ctx, cfg)
	if errors.Is(err, models.ErrSuperseded) || errors.Is(err, models.ErrUploadInProgress) {
		return err
	}

	c.mu.Lock()
	c.errMsg = models.DisplayMessage(err)
	c.mu.Unlock()
	c.emit(EventErrorChanged)

	return err
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.errMsg = models.DisplayMessage(err)
	c.mu.Unlock()
	c.emit(EventErrorChanged)

	return err
}

func (c *Controller) emit(kinds ...EventKind) {
	c.mu.Lock()
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()

	if len(ls) == 0 {
		return
	}

	st := c.State()
	for _, k := range kinds {
		for _, l := range ls {
			l.fn(Event{Kind: k, State: st})
		}
	}
}

func modeFor(sessionID string) Mode {
	if sessionID != "" {
		return ModeRAG
	}
	return ModeDirect
}
