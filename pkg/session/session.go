// Package session owns the assistant and thread handles of one interactive
// session and exposes the operations the menu offers.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/minhyannv/anbud-assistant-go/pkg/conversation"
	"github.com/minhyannv/anbud-assistant-go/pkg/instructions"
	"github.com/minhyannv/anbud-assistant-go/pkg/localfile"
	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

var (
	ErrNoAssistant = errors.New("you need to create an assistant first")
	ErrNoThread    = errors.New("you need to create a thread first")
)

const (
	jokeSystem = "You are a very funny guy."
	jokeUser   = "Tell me an unfunny joke."
	banner     = "---------------------------"
)

// State tracks a remote resource from this session's point of view.
type State int

const (
	StateNone State = iota
	StateCreated
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateDeleted:
		return "deleted"
	default:
		return "none"
	}
}

// Handle is the id of a remote resource and its lifecycle state.
type Handle struct {
	ID    string
	State State
}

func (h Handle) Live() bool { return h.State == StateCreated && h.ID != "" }

// Turner runs one conversation turn.
type Turner interface {
	SendTurn(ctx context.Context, threadID, assistantID, content string) (conversation.Reply, error)
}

type Session struct {
	ID string

	client  remote.Client
	turner  Turner
	catalog *instructions.Catalog
	files   *localfile.Guard
	model   string
	logger  loggerpkg.Logger
	audit   loggerpkg.Logger
	verbose bool

	mu        sync.Mutex
	assistant Handle
	thread    Handle
}

type Option func(*Session)

func WithCatalog(c *instructions.Catalog) Option {
	return func(s *Session) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithFiles sets the guard used to open uploads.
func WithFiles(g *localfile.Guard) Option {
	return func(s *Session) {
		if g != nil {
			s.files = g
		}
	}
}

func WithModel(model string) Option {
	return func(s *Session) { s.model = strings.TrimSpace(model) }
}

func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
		s.verbose = verbose
	}
}

// WithAudit records lifecycle events on l.
func WithAudit(l loggerpkg.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.audit = l
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.ID = id
		}
	}
}

func New(client remote.Client, turner Turner, opts ...Option) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		client:  client,
		turner:  turner,
		catalog: instructions.Default(),
		files:   localfile.NewGuard(nil, nil),
		logger:  loggerpkg.NopLogger{},
		audit:   loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Session) Catalog() *instructions.Catalog { return s.catalog }

func (s *Session) Assistant() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistant
}

func (s *Session) Thread() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread
}

// Start writes the session-start banner.
func (s *Session) Start() {
	s.banner("Session started")
}

func (s *Session) banner(title string) {
	s.audit.Info("\n"+banner+"\n"+title+"\n"+banner, map[string]any{"session_id": s.ID})
}

// CreateAssistant provisions an assistant from the catalog entry under key
// and makes it current. A previously current assistant is left in place
// remotely and only forgotten.
func (s *Session) CreateAssistant(ctx context.Context, key string) (remote.Assistant, error) {
	spec, err := s.catalog.AssistantSpec(key, s.model)
	if err != nil {
		return remote.Assistant{}, err
	}
	a, err := s.client.CreateAssistant(ctx, spec)
	if err != nil {
		return remote.Assistant{}, remote.Wrap("assistants.create", err)
	}

	s.mu.Lock()
	prev := s.assistant
	s.assistant = Handle{ID: a.ID, State: StateCreated}
	s.mu.Unlock()

	if prev.Live() {
		loggerpkg.Warn(s.logger, "replacing current assistant", map[string]any{
			"previous_id":  prev.ID,
			"assistant_id": a.ID,
		})
	}
	s.audit.Info(banner, nil)
	s.audit.Info(fmt.Sprintf("Assistant '%s' created: '%s' using %s", spec.Name, a.ID, a.Model), map[string]any{"key": key})
	s.audit.Info("With instructions: "+spec.Instructions, nil)
	s.audit.Info(banner, nil)
	return a, nil
}

// CreateThread opens a new thread and makes it current.
func (s *Session) CreateThread(ctx context.Context) (remote.Thread, error) {
	loggerpkg.Debug(s.verbose, s.logger, "creating thread", nil)
	th, err := s.client.CreateThread(ctx)
	if err != nil {
		return remote.Thread{}, remote.Wrap("threads.create", err)
	}

	s.mu.Lock()
	prev := s.thread
	s.thread = Handle{ID: th.ID, State: StateCreated}
	s.mu.Unlock()

	if prev.Live() {
		loggerpkg.Warn(s.logger, "replacing current thread", map[string]any{
			"previous_id": prev.ID,
			"thread_id":   th.ID,
		})
	}
	s.audit.Info("Thread created: "+th.ID, nil)
	return th, nil
}

// UploadFile uploads a local document and attaches it to the current
// assistant for retrieval. Local failures are reported before any remote call.
func (s *Session) UploadFile(ctx context.Context, path string) (remote.File, error) {
	asst := s.Assistant()
	if !asst.Live() {
		return remote.File{}, ErrNoAssistant
	}

	f, err := s.files.Open(path)
	if err != nil {
		return remote.File{}, err
	}
	defer f.Close()

	s.audit.Info(fmt.Sprintf("Uploading file '%s' to assistant %s", path, asst.ID), nil)
	file, err := s.client.UploadFile(ctx, f)
	if err != nil {
		return remote.File{}, remote.Wrap("files.create", err)
	}
	loggerpkg.Debug(s.verbose, s.logger, "file created", map[string]any{"file_id": file.ID, "bytes": file.Bytes})

	if err := s.client.AttachFile(ctx, asst.ID, file.ID); err != nil {
		return file, remote.Wrap("assistants.attach_file", err)
	}
	loggerpkg.Debug(s.verbose, s.logger, "file attached to assistant", map[string]any{
		"file_id":      file.ID,
		"assistant_id": asst.ID,
	})
	return file, nil
}

// Send runs one turn on the current thread with the current assistant.
func (s *Session) Send(ctx context.Context, content string) (conversation.Reply, error) {
	asst, th := s.Assistant(), s.Thread()
	if !asst.Live() {
		return conversation.Reply{}, ErrNoAssistant
	}
	if !th.Live() {
		return conversation.Reply{}, ErrNoThread
	}
	return s.turner.SendTurn(ctx, th.ID, asst.ID, content)
}

func (s *Session) ListAssistants(ctx context.Context) ([]remote.Assistant, error) {
	list, err := s.client.ListAssistants(ctx)
	if err != nil {
		return nil, remote.Wrap("assistants.list", err)
	}
	return list, nil
}

// ClearAssistants deletes every assistant on the account and the current
// thread. A handle is reset only when its remote object was deleted. It
// returns how many assistants were deleted; individual failures are joined
// and do not stop the sweep.
func (s *Session) ClearAssistants(ctx context.Context) (int, error) {
	list, err := s.ListAssistants(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	deleted := map[string]bool{}
	for _, a := range list {
		loggerpkg.Debug(s.verbose, s.logger, "deleting assistant", map[string]any{"assistant_id": a.ID})
		if err := s.client.DeleteAssistant(ctx, a.ID); err != nil {
			errs = append(errs, remote.Wrap("assistants.delete", err))
			continue
		}
		deleted[a.ID] = true
	}

	threadDeleted := false
	if th := s.Thread(); th.Live() {
		if err := s.client.DeleteThread(ctx, th.ID); err != nil {
			errs = append(errs, remote.Wrap("threads.delete", err))
		} else {
			threadDeleted = true
		}
	}

	s.mu.Lock()
	if s.assistant.State == StateCreated && deleted[s.assistant.ID] {
		s.assistant.State = StateDeleted
	}
	if s.thread.State == StateCreated && threadDeleted {
		s.thread.State = StateDeleted
	}
	s.mu.Unlock()

	s.audit.Info(fmt.Sprintf("Cleared %d assistant(s)", len(deleted)), nil)
	return len(deleted), errors.Join(errs...)
}

// Joke asks the model for a joke. It is a connectivity check that needs
// neither an assistant nor a thread.
func (s *Session) Joke(ctx context.Context) (string, error) {
	out, err := s.client.Complete(ctx, remote.CompletionRequest{System: jokeSystem, User: jokeUser})
	if err != nil {
		return "", remote.Wrap("chat.completions.create", err)
	}
	return out, nil
}

// Close deletes the current assistant and thread and writes the session-end
// banner. Both deletions are attempted; their errors are joined.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	asst, th := s.assistant, s.thread
	s.mu.Unlock()

	var errs []error
	if asst.Live() {
		loggerpkg.Debug(s.verbose, s.logger, "deleting assistant", map[string]any{"assistant_id": asst.ID})
		if err := s.client.DeleteAssistant(ctx, asst.ID); err != nil {
			errs = append(errs, remote.Wrap("assistants.delete", err))
		} else {
			s.mu.Lock()
			s.assistant.State = StateDeleted
			s.mu.Unlock()
		}
	}
	if th.Live() {
		loggerpkg.Debug(s.verbose, s.logger, "deleting thread", map[string]any{"thread_id": th.ID})
		if err := s.client.DeleteThread(ctx, th.ID); err != nil {
			errs = append(errs, remote.Wrap("threads.delete", err))
		} else {
			s.mu.Lock()
			s.thread.State = StateDeleted
			s.mu.Unlock()
		}
	}

	s.banner("Session ended")
	return errors.Join(errs...)
}
