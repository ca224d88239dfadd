package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/MegaGrindStone/quinton-chat/internal/session"
	"github.com/mattn/go-runewidth"
)

// repl runs the commands of one terminal session against a session.Controller. It's used from a
// single goroutine: controller events are delivered on the goroutine that calls into it.
type repl struct {
	out        io.Writer
	controller *session.Controller
	catalog    models.Catalog

	apiKey        string
	modelID       string
	personalityID string

	// State of the reply being printed.
	streaming bool
	started   bool
	printed   int
}

func newREPL(a *app, opts *options, out io.Writer) (*repl, error) {
	r := &repl{
		out:        out,
		controller: session.New(a.backend, a.logger),
		catalog:    a.catalog,
		apiKey:     a.cfg.APIKey,
	}
	if opts.model != "" {
		if err := r.setModel(opts.model); err != nil {
			return nil, err
		}
	}
	if opts.personality != "" {
		if err := r.setPersonality(opts.personality); err != nil {
			return nil, err
		}
	}
	r.controller.Subscribe(r.onEvent)
	return r, nil
}

// onEvent prints the part of the reply that wasn't printed yet.
func (r *repl) onEvent(e session.Event) {
	if e.Kind != session.EventMessagesChanged || !r.streaming {
		return
	}
	msgs := e.State.Messages
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleAssistant || len(last.Content) < r.printed {
		return
	}

	if !r.started {
		fmt.Fprint(r.out, assistantStyle.Render("Quinton: "))
		r.started = true
	}
	fmt.Fprint(r.out, last.Content[r.printed:])
	r.printed = len(last.Content)
}

// handle runs one line of input and reports whether the session should end.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return true
	case strings.HasPrefix(line, "/"):
		quit, err := r.command(ctx, line)
		if err != nil {
			r.printError(err)
		}
		return quit
	}

	if err := r.send(ctx, line); err != nil {
		r.printError(err)
	}
	return false
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/?":
		r.printHelp()
	case "/file":
		if arg == "" {
			return false, fmt.Errorf("usage: /file <path>")
		}
		return false, r.selectFile(arg)
	case "/upload":
		return false, r.upload(ctx)
	case "/model":
		if arg == "" {
			return false, fmt.Errorf("usage: /model <id>, see /models")
		}
		if err := r.setModel(arg); err != nil {
			return false, err
		}
		r.printInfo("Model set to " + arg)
	case "/personality":
		if arg == "" {
			return false, fmt.Errorf("usage: /personality <id>, see /personalities")
		}
		if err := r.setPersonality(arg); err != nil {
			return false, err
		}
		r.printInfo("Personality set to " + arg)
	case "/models":
		r.printOptions(r.catalog.Models(), r.currentModel().ID)
	case "/personalities":
		r.printOptions(r.catalog.Personalities(), r.currentPersonality().ID)
	case "/mode":
		r.printInfo(modeDescription(r.controller.Mode()))
	case "/reset", "/clear":
		r.controller.Reset()
		r.printInfo("Conversation cleared")
	case "/status":
		r.printStatus()
	default:
		return false, fmt.Errorf("unknown command %s, type /help for the list", name)
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, text string) error {
	cfg, err := r.requestConfig()
	if err != nil {
		return err
	}

	r.streaming, r.started, r.printed = true, false, 0
	err = r.controller.Send(ctx, text, cfg)
	r.streaming = false
	if r.started {
		fmt.Fprintln(r.out)
	}
	return err
}

func (r *repl) selectFile(path string) error {
	f, err := models.FileFromPath(path)
	if err != nil {
		return err
	}
	r.controller.SelectFile(f)
	r.printInfo(fmt.Sprintf("Selected %s, the conversation was cleared. Run /upload to index it.", f.Name))
	return nil
}

func (r *repl) upload(ctx context.Context) error {
	cfg, err := r.requestConfig()
	if err != nil {
		return err
	}

	if name := r.controller.State().Upload.FileName; name != "" {
		r.printInfo("Uploading " + name + "...")
	}
	if err := r.controller.Upload(ctx, cfg); err != nil {
		return err
	}
	r.printInfo(r.controller.State().Upload.StatusMessage)
	r.printInfo(modeDescription(session.ModeRAG))
	return nil
}

func (r *repl) setModel(id string) error {
	if _, ok := r.catalog.Model(id); !ok {
		return models.ValidationError(fmt.Sprintf("unknown model %q", id))
	}
	r.modelID = id
	return nil
}

func (r *repl) setPersonality(id string) error {
	if _, ok := r.catalog.Personality(id); !ok {
		return models.ValidationError(fmt.Sprintf("unknown personality %q", id))
	}
	r.personalityID = id
	return nil
}

func (r *repl) currentModel() models.Option {
	if o, ok := r.catalog.Model(r.modelID); ok {
		return o
	}
	return r.catalog.DefaultModel()
}

func (r *repl) currentPersonality() models.Option {
	if o, ok := r.catalog.Personality(r.personalityID); ok {
		return o
	}
	return r.catalog.DefaultPersonality()
}

func (r *repl) requestConfig() (models.RequestConfig, error) {
	return r.catalog.RequestConfig(r.apiKey, r.modelID, r.personalityID)
}

func (r *repl) printWelcome() {
	fmt.Fprintln(r.out, welcomeStyle.Render("Quinton the Query Wizard"))
	fmt.Fprintln(r.out, infoStyle.Render("Type a question, or /help for commands."))
	if r.apiKey == "" {
		fmt.Fprintln(r.out, warningStyle.Render("No API key set, use --api-key or QUINTON_API_KEY."))
	}
}

func (r *repl) printHelp() {
	cmds := [][2]string{
		{"/file <path>", "select a PDF, clears the conversation"},
		{"/upload", "upload the selected PDF and chat with it"},
		{"/model <id>", "switch model"},
		{"/personality <id>", "switch personality (direct chat only)"},
		{"/models", "list models"},
		{"/personalities", "list personalities"},
		{"/mode", "show whether questions go to the document"},
		{"/reset", "clear the conversation, keeps the document"},
		{"/status", "show the session settings"},
		{"/quit", "leave"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", commandStyle.Render(runewidth.FillRight(c[0], 18)), infoStyle.Render(c[1]))
	}
}

func (r *repl) printOptions(opts []models.Option, current string) {
	for _, o := range opts {
		marker := " "
		if o.ID == current {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s %s\n", marker, commandStyle.Render(o.ID), infoStyle.Render(o.Label))
	}
}

func (r *repl) printStatus() {
	st := r.controller.State()

	doc := "none"
	if st.Upload.FileName != "" {
		doc = fmt.Sprintf("%s (%s)", st.Upload.FileName, st.Upload.Status)
	}
	key := "not set"
	if r.apiKey != "" {
		key = "set"
	}

	rows := [][2]string{
		{"Mode", string(st.Mode)},
		{"Model", r.currentModel().ID},
		{"Personality", r.currentPersonality().ID},
		{"Document", doc},
		{"Messages", fmt.Sprint(len(st.Messages))},
		{"API key", key},
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render(runewidth.FillRight(row[0]+":", 12)), row[1])
	}
}

func (r *repl) printInfo(msg string) {
	fmt.Fprintln(r.out, infoStyle.Render(msg))
}

func (r *repl) printError(err error) {
	fmt.Fprintf(r.out, "%s %s\n", errorStyle.Render("[Error]"), models.DisplayMessage(err))
}

func modeDescription(m session.Mode) string {
	if m == session.ModeRAG {
		return "Questions are answered from the uploaded document."
	}
	return "Questions go to the direct chat."
}
