// Package remote defines the contract the core uses to talk to the hosted
// assistants service, plus an OpenAI-backed implementation.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// RunStatus is the provider-reported state of a run. Providers may report
// names outside the constants below; those are treated as non-terminal.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusExpired    RunStatus = "expired"
)

// Terminal reports whether no further transition can follow s.
func (s RunStatus) Terminal() bool {
	return s.Succeeded() || s.Failed()
}

// Succeeded reports whether s is the success terminal state.
func (s RunStatus) Succeeded() bool {
	return s == RunStatusCompleted
}

// Failed reports whether s is one of the failure terminal states.
func (s RunStatus) Failed() bool {
	switch s {
	case RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	default:
		return false
	}
}

// Role is the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Order is the sort order of a message listing.
type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// Tool is a capability declared on an assistant.
type Tool string

const (
	ToolFileSearch      Tool = "file_search"
	ToolCodeInterpreter Tool = "code_interpreter"
)

// AssistantSpec describes an assistant to create.
type AssistantSpec struct {
	Name         string
	Description  string
	Instructions string
	// Model overrides the client default when set.
	Model string
	Tools []Tool
}

type Assistant struct {
	ID          string
	Name        string
	Description string
	Model       string
	CreatedAt   time.Time
}

type Thread struct {
	ID string
}

type Message struct {
	ID        string
	ThreadID  string
	Role      Role
	Content   string
	CreatedAt time.Time
}

type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      RunStatus
}

type File struct {
	ID    string
	Name  string
	Bytes int64
}

// CompletionRequest is a single system+user chat completion.
type CompletionRequest struct {
	System string
	User   string
	// JSON requests a machine-parseable JSON object response.
	JSON bool
}

// FragmentStream is a finite, non-restartable sequence of text fragments.
type FragmentStream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

// Client is the set of remote capabilities the core depends on.
type Client interface {
	CreateAssistant(ctx context.Context, spec AssistantSpec) (Assistant, error)
	ListAssistants(ctx context.Context) ([]Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) error

	CreateThread(ctx context.Context) (Thread, error)
	DeleteThread(ctx context.Context, threadID string) error

	CreateMessage(ctx context.Context, threadID string, role Role, content string) (Message, error)
	ListMessages(ctx context.Context, threadID string, order Order) ([]Message, error)

	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)

	UploadFile(ctx context.Context, file io.Reader) (File, error)
	// AttachFile makes fileID searchable by the assistant. Earlier
	// attachments stay searchable.
	AttachFile(ctx context.Context, assistantID, fileID string) error

	Complete(ctx context.Context, req CompletionRequest) (string, error)
	StreamCompletion(ctx context.Context, req CompletionRequest) (FragmentStream, error)
}

// ErrRemote matches every error produced by a failed remote call.
var ErrRemote = errors.New("remote call failed")

// Error is a failed remote create, delete, list or read call.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrRemote }

// Wrap tags err with the remote operation that produced it. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Err: err}
}
