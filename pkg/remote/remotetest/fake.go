// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

// ErrNotFound is returned for unknown ids.
var ErrNotFound = errors.New("not found")

// Fake is a scripted, concurrency-safe remote.Client.
//
// Each run reports the statuses in RunScript on successive GetRun calls and
// repeats the last one when the script is exhausted. When a run first reports
// completed, an assistant message produced by Reply is appended to its thread.
type Fake struct {
	mu sync.Mutex

	RunScript []remote.RunStatus
	Reply     func(prompt string) string
	Fragments []string
	StreamErr error
	Joke      string

	seq         int
	clock       time.Time
	calls       []string
	failures    map[string]error
	assistants  map[string]remote.Assistant
	threads     map[string]*thread
	runs        map[string]*run
	files       map[string]remote.File
	attachments map[string][]string
}

type thread struct {
	messages []remote.Message
}

type run struct {
	remote.Run
	script []remote.RunStatus
	reads  int
	prompt string
	done   bool
}

var _ remote.Client = (*Fake)(nil)

// New returns a Fake whose runs go queued -> in_progress -> completed.
func New() *Fake {
	return &Fake{
		RunScript:   []remote.RunStatus{remote.RunStatusQueued, remote.RunStatusInProgress, remote.RunStatusCompleted},
		Reply:       func(prompt string) string { return "reply to " + prompt },
		clock:       time.Unix(1700000000, 0),
		failures:    map[string]error{},
		assistants:  map[string]remote.Assistant{},
		threads:     map[string]*thread{},
		runs:        map[string]*run{},
		files:       map[string]remote.File{},
		attachments: map[string][]string{},
	}
}

// FailOn makes every later call of op return err wrapped as a remote error.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// Calls returns the operations performed so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls reports how many times op was called.
func (f *Fake) CountCalls(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// Messages returns a thread's messages in creation order.
func (f *Fake) Messages(threadID string) []remote.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok {
		return nil
	}
	return append([]remote.Message(nil), t.messages...)
}

// AssistantIDs returns the live assistant ids, sorted.
func (f *Fake) AssistantIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.assistants))
	for id := range f.assistants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasThread reports whether threadID is live.
func (f *Fake) HasThread(threadID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.threads[threadID]
	return ok
}

// Files returns the uploaded files keyed by id.
func (f *Fake) Files() map[string]remote.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]remote.File, len(f.files))
	for k, v := range f.files {
		out[k] = v
	}
	return out
}

// Attachments returns the file ids attached to an assistant.
func (f *Fake) Attachments(assistantID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attachments[assistantID]...)
}

// begin records op and returns the configured failure, if any. Callers hold mu.
func (f *Fake) begin(op string) error {
	f.calls = append(f.calls, op)
	if err, ok := f.failures[op]; ok {
		return remote.Wrap(op, err)
	}
	return nil
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *Fake) CreateAssistant(_ context.Context, spec remote.AssistantSpec) (remote.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("assistants.create"); err != nil {
		return remote.Assistant{}, err
	}
	a := remote.Assistant{
		ID:          f.nextID("asst"),
		Name:        spec.Name,
		Description: spec.Description,
		Model:       spec.Model,
		CreatedAt:   f.tick(),
	}
	f.assistants[a.ID] = a
	return a, nil
}

func (f *Fake) ListAssistants(_ context.Context) ([]remote.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("assistants.list"); err != nil {
		return nil, err
	}
	out := make([]remote.Assistant, 0, len(f.assistants))
	for _, a := range f.assistants {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) DeleteAssistant(_ context.Context, assistantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("assistants.delete"); err != nil {
		return err
	}
	if _, ok := f.assistants[assistantID]; !ok {
		return remote.Wrap("assistants.delete", ErrNotFound)
	}
	delete(f.assistants, assistantID)
	return nil
}

func (f *Fake) CreateThread(_ context.Context) (remote.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("threads.create"); err != nil {
		return remote.Thread{}, err
	}
	id := f.nextID("thread")
	f.threads[id] = &thread{}
	return remote.Thread{ID: id}, nil
}

func (f *Fake) DeleteThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("threads.delete"); err != nil {
		return err
	}
	if _, ok := f.threads[threadID]; !ok {
		return remote.Wrap("threads.delete", ErrNotFound)
	}
	delete(f.threads, threadID)
	return nil
}

func (f *Fake) CreateMessage(_ context.Context, threadID string, role remote.Role, content string) (remote.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("messages.create"); err != nil {
		return remote.Message{}, err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return remote.Message{}, remote.Wrap("messages.create", ErrNotFound)
	}
	return f.appendMessage(t, threadID, role, content), nil
}

func (f *Fake) appendMessage(t *thread, threadID string, role remote.Role, content string) remote.Message {
	msg := remote.Message{
		ID:        f.nextID("msg"),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: f.tick(),
	}
	t.messages = append(t.messages, msg)
	return msg
}

func (f *Fake) ListMessages(_ context.Context, threadID string, order remote.Order) ([]remote.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("messages.list"); err != nil {
		return nil, err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return nil, remote.Wrap("messages.list", ErrNotFound)
	}
	out := append([]remote.Message(nil), t.messages...)
	if order != remote.OrderAsc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (f *Fake) CreateRun(_ context.Context, threadID, assistantID string) (remote.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("runs.create"); err != nil {
		return remote.Run{}, err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return remote.Run{}, remote.Wrap("runs.create", ErrNotFound)
	}
	if _, ok := f.assistants[assistantID]; !ok {
		return remote.Run{}, remote.Wrap("runs.create", ErrNotFound)
	}
	prompt := ""
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == remote.RoleUser {
			prompt = t.messages[i].Content
			break
		}
	}
	r := &run{
		Run: remote.Run{
			ID:          f.nextID("run"),
			ThreadID:    threadID,
			AssistantID: assistantID,
			Status:      remote.RunStatusQueued,
		},
		script: append([]remote.RunStatus(nil), f.RunScript...),
		prompt: prompt,
	}
	f.runs[r.ID] = r
	return r.Run, nil
}

func (f *Fake) GetRun(_ context.Context, threadID, runID string) (remote.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("runs.retrieve"); err != nil {
		return remote.Run{}, err
	}
	r, ok := f.runs[runID]
	if !ok || r.ThreadID != threadID {
		return remote.Run{}, remote.Wrap("runs.retrieve", ErrNotFound)
	}
	if len(r.script) > 0 {
		idx := r.reads
		if idx >= len(r.script) {
			idx = len(r.script) - 1
		}
		r.Status = r.script[idx]
	}
	r.reads++
	if r.Status.Succeeded() && !r.done {
		r.done = true
		if t, ok := f.threads[threadID]; ok {
			f.appendMessage(t, threadID, remote.RoleAssistant, f.Reply(r.prompt))
		}
	}
	return r.Run, nil
}

// RunReads reports how many status reads runID has received.
func (f *Fake) RunReads(runID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[runID]; ok {
		return r.reads
	}
	return 0
}

func (f *Fake) UploadFile(_ context.Context, file io.Reader) (remote.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("files.create"); err != nil {
		return remote.File{}, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return remote.File{}, remote.Wrap("files.create", err)
	}
	name := ""
	if named, ok := file.(interface{ Name() string }); ok {
		name = named.Name()
	}
	obj := remote.File{ID: f.nextID("file"), Name: name, Bytes: int64(len(data))}
	f.files[obj.ID] = obj
	return obj, nil
}

func (f *Fake) AttachFile(_ context.Context, assistantID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("assistants.attach_file"); err != nil {
		return err
	}
	if _, ok := f.assistants[assistantID]; !ok {
		return remote.Wrap("assistants.attach_file", ErrNotFound)
	}
	if _, ok := f.files[fileID]; !ok {
		return remote.Wrap("assistants.attach_file", ErrNotFound)
	}
	f.attachments[assistantID] = append(f.attachments[assistantID], fileID)
	return nil
}

func (f *Fake) Complete(_ context.Context, _ remote.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("chat.completions.create"); err != nil {
		return "", err
	}
	return f.Joke, nil
}

func (f *Fake) StreamCompletion(_ context.Context, _ remote.CompletionRequest) (remote.FragmentStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("chat.completions.stream"); err != nil {
		return nil, err
	}
	return NewStream(f.Fragments, f.StreamErr), nil
}

// Stream is a FragmentStream over a fixed slice.
type Stream struct {
	fragments []string
	err       error
	pos       int
	closed    bool
}

// NewStream yields fragments in order and then reports err, if non-nil.
func NewStream(fragments []string, err error) *Stream {
	return &Stream{fragments: append([]string(nil), fragments...), err: err, pos: -1}
}

func (s *Stream) Next() bool {
	if s.closed || s.pos+1 >= len(s.fragments) {
		s.pos = len(s.fragments)
		return false
	}
	s.pos++
	return true
}

func (s *Stream) Fragment() string {
	if s.pos < 0 || s.pos >= len(s.fragments) {
		return ""
	}
	return s.fragments[s.pos]
}

func (s *Stream) Err() error {
	if s.pos >= len(s.fragments) {
		return s.err
	}
	return nil
}

func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed }
