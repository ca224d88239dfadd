package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	quintonchat "github.com/MegaGrindStone/quinton-chat"
	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/MegaGrindStone/quinton-chat/internal/session"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

// Controller is the chat session the web UI drives. It's implemented by session.Controller.
type Controller interface {
	Send(ctx context.Context, text string, cfg models.RequestConfig) error
	Upload(ctx context.Context, cfg models.RequestConfig) error
	SelectFile(file models.File)
	Reset()
	State() session.State
	Subscribe(fn func(session.Event)) func()
}

// Main serves the web UI of a single chat session. Every change of the session is pushed to the
// connected browsers as server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	controller    Controller
	catalog       models.Catalog
	defaultAPIKey string

	unsubscribe func()
	logger      *slog.Logger
}

// SSE event types pushed to the browser.
var (
	messagesSSEType = sse.Type("messages")
	uploadSSEType   = sse.Type("upload")
	statusSSEType   = sse.Type("status")
	closeSSEType    = sse.Type("closeChat")
)

const errLoggerKey = "err"

// NewMain creates a Main serving controller. defaultAPIKey is used for requests whose form doesn't
// carry a key; it may be empty.
func NewMain(controller Controller, catalog models.Catalog, defaultAPIKey string, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		quintonchat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	m := Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic},
				}, true
			},
		},
		templates: tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle("github")),
			),
		),
		controller:    controller,
		catalog:       catalog,
		defaultAPIKey: defaultAPIKey,
		logger:        logger.With(slog.String("module", "main")),
	}
	m.unsubscribe = controller.Subscribe(m.publishEvent)

	return m, nil
}

// Shutdown stops publishing session events and terminates the SSE server. It broadcasts a close
// message to all connected clients and waits up to 5 seconds for connections to terminate. After
// the timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.unsubscribe()

	e := &sse.Message{Type: closeSSEType}
	// Every SSE event needs a data field
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

func (m Main) publishEvent(e session.Event) {
	var (
		msg      sse.Message
		rendered string
		err      error
	)

	switch e.Kind {
	case session.EventMessagesChanged:
		msg.Type = messagesSSEType
		rendered, err = m.renderPartial("messages", m.messageViews(e.State.Messages))
	case session.EventUploadChanged:
		msg.Type = uploadSSEType
		rendered, err = m.renderPartial("upload_status", uploadViewOf(e.State))
	case session.EventBusyChanged, session.EventErrorChanged:
		msg.Type = statusSSEType
		rendered, err = m.renderPartial("status", statusViewOf(e.State))
	default:
		// The message form clears itself on submit.
		return
	}
	if err != nil {
		m.logger.Error("Failed to render event",
			slog.Int("kind", int(e.Kind)),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg.AppendData(rendered)
	if err := m.sseSrv.Publish(&msg); err != nil {
		m.logger.Error("Failed to publish event",
			slog.Int("kind", int(e.Kind)),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) renderPartial(name string, data any) (string, error) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return sb.String(), nil
}
