package handlers

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/MegaGrindStone/quinton-chat/internal/session"
)

type message struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time
}

type uploadView struct {
	FileName      string
	Status        string
	StatusMessage string
	Chunks        int
}

type statusView struct {
	Mode  string
	Busy  bool
	Error string
}

type homePageData struct {
	Messages      []message
	Upload        uploadView
	Status        statusView
	Models        []models.Option
	Personalities []models.Option
	HasAPIKey     bool
}

// HandleHome renders the chat page with the current state of the session.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	st := m.controller.State()
	data := homePageData{
		Messages:      m.messageViews(st.Messages),
		Upload:        uploadViewOf(st),
		Status:        statusViewOf(st),
		Models:        m.catalog.Models(),
		Personalities: m.catalog.Personalities(),
		HasAPIKey:     m.defaultAPIKey != "",
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSSE streams session events to the browser.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) messageViews(msgs []models.Message) []message {
	views := make([]message, len(msgs))
	for i, msg := range msgs {
		views[i] = message{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   m.renderContent(msg),
			Timestamp: msg.Timestamp,
		}
	}
	return views
}

// renderContent renders assistant replies as markdown. User input is shown as typed.
func (m Main) renderContent(msg models.Message) template.HTML {
	if msg.Role != models.RoleAssistant {
		return template.HTML(template.HTMLEscapeString(msg.Content))
	}

	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(msg.Content), &buf); err != nil {
		m.logger.Error("Failed to render markdown",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		return template.HTML(template.HTMLEscapeString(msg.Content))
	}
	// goldmark escapes raw HTML in the source unless WithUnsafe is set.
	return template.HTML(buf.String())
}

func uploadViewOf(st session.State) uploadView {
	return uploadView{
		FileName:      st.Upload.FileName,
		Status:        string(st.Upload.Status),
		StatusMessage: st.Upload.StatusMessage,
		Chunks:        st.Upload.Chunks,
	}
}

func statusViewOf(st session.State) statusView {
	return statusView{
		Mode:  string(st.Mode),
		Busy:  st.Busy,
		Error: st.Error,
	}
}
