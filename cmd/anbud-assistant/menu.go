package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/session"
)

// chatExit leaves the chat loop.
const chatExit = "exit"

// runMenu drives the numbered menu until 0 is chosen, input ends or ctx is
// cancelled. Operation errors are printed and the loop continues. The session
// is always closed.
func runMenu(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	if a == nil {
		return fmt.Errorf("app is required")
	}
	if in == nil {
		return fmt.Errorf("input reader is required")
	}
	if out == nil {
		out = io.Discard
	}

	loggerpkg.Debug(a.cfg.Verbose, a.logger, "menu start", map[string]any{"session_id": a.session.ID})
	a.session.Start()
	m := newMenu(ctx, a, in, out)
	defer m.stop()

	for ctx.Err() == nil {
		printMenu(out)
		choice, ok := m.prompt("Choice: ")
		if !ok || choice == "0" {
			break
		}
		m.dispatch(ctx, choice)
	}

	if ctx.Err() != nil {
		_, _ = fmt.Fprintln(out, "\nInterrupted")
	}
	_, _ = fmt.Fprintln(out, "Cleaning up...")
	if err := a.session.Close(context.WithoutCancel(ctx)); err != nil {
		_, _ = fmt.Fprintln(out, describeError(err))
	}
	if err := m.readErr(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

type menu struct {
	app  *app
	ctx  context.Context
	out  io.Writer
	done chan struct{}

	lines <-chan string
	errc  <-chan error
}

// newMenu starts reading in on its own goroutine so a blocked read does not
// hold the menu past ctx cancellation.
func newMenu(ctx context.Context, a *app, in io.Reader, out io.Writer) *menu {
	lines := make(chan string)
	errc := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return &menu{app: a, ctx: ctx, out: out, done: done, lines: lines, errc: errc}
}

func (m *menu) stop() { close(m.done) }

// readErr reports a read failure once input has ended.
func (m *menu) readErr() error {
	select {
	case err := <-m.errc:
		return err
	default:
		return nil
	}
}

// prompt prints label and reads one trimmed line; false means input ended or
// ctx was cancelled.
func (m *menu) prompt(label string) (string, bool) {
	if m.ctx.Err() != nil {
		return "", false
	}
	_, _ = fmt.Fprint(m.out, label)
	select {
	case <-m.ctx.Done():
		return "", false
	case line, ok := <-m.lines:
		if !ok {
			return "", false
		}
		return strings.TrimSpace(line), true
	}
}

func (m *menu) fail(err error) {
	_, _ = fmt.Fprintln(m.out, describeError(err))
}

func (m *menu) dispatch(ctx context.Context, choice string) {
	s := m.app.session
	switch choice {
	case "1":
		joke, err := s.Joke(ctx)
		if err != nil {
			m.fail(err)
			return
		}
		_, _ = fmt.Fprintln(m.out, joke)
	case "2":
		m.createAssistant(ctx)
	case "3":
		th, err := s.CreateThread(ctx)
		if err != nil {
			m.fail(err)
			return
		}
		_, _ = fmt.Fprintf(m.out, "Thread created: %s\n", th.ID)
	case "4":
		if !s.Assistant().Live() {
			m.fail(session.ErrNoAssistant)
			return
		}
		path, ok := m.prompt("File path: ")
		if !ok {
			return
		}
		if _, err := s.UploadFile(ctx, path); err != nil {
			m.fail(err)
			return
		}
		_, _ = fmt.Fprintln(m.out, "File uploaded to assistant")
	case "5":
		if err := m.requireConversation(); err != nil {
			m.fail(err)
			return
		}
		message, ok := m.prompt("> ")
		if !ok {
			return
		}
		m.send(ctx, message)
	case "6":
		if err := m.requireConversation(); err != nil {
			m.fail(err)
			return
		}
		_, _ = fmt.Fprintf(m.out, "Type '%s' to exit\n", chatExit)
		for ctx.Err() == nil {
			message, ok := m.prompt("> ")
			if !ok || message == chatExit {
				return
			}
			if message == "" {
				continue
			}
			m.send(ctx, message)
		}
	case "7":
		list, err := s.ListAssistants(ctx)
		if err != nil {
			m.fail(err)
			return
		}
		for _, asst := range list {
			_, _ = fmt.Fprintf(m.out, "%s: %s\n", asst.ID, asst.Name)
		}
	case "8":
		_, _ = fmt.Fprintln(m.out, "Clearing assistants...")
		n, err := s.ClearAssistants(ctx)
		if err != nil {
			m.fail(err)
		}
		_, _ = fmt.Fprintf(m.out, "Deleted %d assistant(s)\n", n)
	case "9":
		if err := m.app.generateMatrix(ctx, m.out); err != nil {
			m.fail(err)
		}
	default:
		_, _ = fmt.Fprintln(m.out, "Invalid choice")
	}
}

func (m *menu) createAssistant(ctx context.Context) {
	catalog := m.app.session.Catalog()
	for _, e := range catalog.Entries() {
		_, _ = fmt.Fprintf(m.out, "%s. %s\n", e.Choice, e.Title)
	}
	choice, ok := m.prompt("Choice: ")
	if !ok {
		return
	}
	entry, found := catalog.Lookup(choice)
	if !found {
		_, _ = fmt.Fprintln(m.out, "Invalid choice")
		return
	}
	a, err := m.app.session.CreateAssistant(ctx, entry.Key)
	if err != nil {
		m.fail(err)
		return
	}
	_, _ = fmt.Fprintf(m.out, "Assistant created: %s\n", a.ID)
}

func (m *menu) requireConversation() error {
	s := m.app.session
	if !s.Assistant().Live() {
		return session.ErrNoAssistant
	}
	if !s.Thread().Live() {
		return session.ErrNoThread
	}
	return nil
}

func (m *menu) send(ctx context.Context, message string) {
	reply, err := m.app.session.Send(ctx, message)
	if err != nil {
		m.fail(err)
		return
	}
	_, _ = fmt.Fprintln(m.out, reply.Content)
}

func printMenu(out io.Writer) {
	_, _ = fmt.Fprintln(out, "1. Tell me a joke")
	_, _ = fmt.Fprintln(out, "2. Create assistant")
	_, _ = fmt.Fprintln(out, "3. Create thread")
	_, _ = fmt.Fprintln(out, "4. Upload file")
	_, _ = fmt.Fprintln(out, "5. Send single message")
	_, _ = fmt.Fprintln(out, "6. Chat in thread")
	_, _ = fmt.Fprintln(out, "7. List assistants")
	_, _ = fmt.Fprintln(out, "8. Clear assistants")
	_, _ = fmt.Fprintln(out, "9. Competency matrix")
	_, _ = fmt.Fprintln(out, "0. Exit")
}
