package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// runChat reads lines until /quit, EOF or Ctrl+C at the prompt. Ctrl+C while a reply streams
// cancels that reply only.
func runChat(ctx context.Context, a *app, opts *options, out io.Writer) error {
	r, err := newREPL(a, opts, out)
	if err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return runScript(ctx, r, os.Stdin)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := historyPath()
	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
		defer saveHistory(line, history)
	}

	r.printWelcome()

	for {
		input, err := line.Prompt(promptStyle.Render("quinton> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		lineCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		quit := r.handle(lineCtx, input)
		stop()
		if quit {
			return nil
		}
	}
}

// runScript runs piped input line by line, without prompt or history.
func runScript(ctx context.Context, r *repl, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if r.handle(ctx, scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func historyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "quinton", "history")
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
