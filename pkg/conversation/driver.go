// Package conversation performs one request/response turn on an assistant
// thread: post the user message, start a run, wait for it and read the reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/metrics"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

var (
	// ErrRunFailed is matched by every *RunFailedError.
	ErrRunFailed = errors.New("run did not complete")
	// ErrThreadBusy is returned when a turn is already in flight on the thread.
	ErrThreadBusy = errors.New("thread already has a run in progress")
	// ErrNoReply is returned when a completed run left no message to read.
	ErrNoReply = errors.New("no reply message in thread")
)

// RunFailedError reports a run that ended in failed, cancelled or expired.
type RunFailedError struct {
	RunID  string
	Status remote.RunStatus
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("Run status is '%s'. Unable to complete the request.", e.Status)
}

func (e *RunFailedError) Unwrap() error { return ErrRunFailed }

// Remote is the subset of remote.Client a turn needs.
type Remote interface {
	CreateMessage(ctx context.Context, threadID string, role remote.Role, content string) (remote.Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (remote.Run, error)
	ListMessages(ctx context.Context, threadID string, order remote.Order) ([]remote.Message, error)
}

// Waiter blocks until a run is terminal.
type Waiter interface {
	Wait(ctx context.Context, threadID, runID string) (remote.RunStatus, error)
}

// Reply is the outcome of a successful turn.
type Reply struct {
	RunID     string
	MessageID string
	Content   string
	Status    remote.RunStatus
}

// Driver runs turns. It is safe for concurrent use across threads; turns on
// the same thread are rejected while one is in flight.
type Driver struct {
	remote  Remote
	waiter  Waiter
	order   remote.Order
	logger  loggerpkg.Logger
	audit   loggerpkg.Logger
	verbose bool
	metrics *metrics.Metrics

	mu   sync.Mutex
	busy map[string]struct{}
}

// Option configures a Driver.
type Option func(*Driver)

// WithOrder sets the listing order used to locate the newest message.
func WithOrder(order remote.Order) Option {
	return func(d *Driver) {
		if order == remote.OrderAsc || order == remote.OrderDesc {
			d.order = order
		}
	}
}

func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
		d.verbose = verbose
	}
}

// WithAudit records every prompt and reply on l.
func WithAudit(l loggerpkg.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.audit = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

func New(r Remote, w Waiter, opts ...Option) *Driver {
	d := &Driver{
		remote: r,
		waiter: w,
		order:  remote.OrderDesc,
		logger: loggerpkg.NopLogger{},
		audit:  loggerpkg.NopLogger{},
		busy:   map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// SendTurn appends content as a user message, runs the assistant on the
// thread and returns the newest message once the run completes.
//
// A failed create is returned as a remote error without retry. If the run
// cannot be started the user message stays in the thread. A failure terminal
// yields a *RunFailedError and no message listing.
func (d *Driver) SendTurn(ctx context.Context, threadID, assistantID, content string) (Reply, error) {
	if threadID == "" || assistantID == "" {
		return Reply{}, errors.New("thread id and assistant id are required")
	}
	if strings.TrimSpace(content) == "" {
		return Reply{}, errors.New("message content is required")
	}
	if !d.acquire(threadID) {
		d.metrics.Turn("busy")
		return Reply{}, ErrThreadBusy
	}
	defer d.release(threadID)

	loggerpkg.Debug(d.verbose, d.logger, "sending message", map[string]any{
		"thread_id":    threadID,
		"assistant_id": assistantID,
		"bytes":        len(content),
	})
	d.audit.Info("> "+content, nil)

	msg, err := d.remote.CreateMessage(ctx, threadID, remote.RoleUser, content)
	if err != nil {
		d.metrics.Turn("error")
		return Reply{}, remote.Wrap("messages.create", err)
	}
	loggerpkg.Debug(d.verbose, d.logger, "message sent", map[string]any{"message_id": msg.ID})

	run, err := d.remote.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		d.metrics.Turn("error")
		loggerpkg.Warn(d.logger, "run not started; user message left unanswered", map[string]any{
			"thread_id":  threadID,
			"message_id": msg.ID,
		})
		return Reply{}, remote.Wrap("runs.create", err)
	}
	loggerpkg.Debug(d.verbose, d.logger, "run created", map[string]any{"run_id": run.ID, "status": run.Status})

	status, err := d.waiter.Wait(ctx, threadID, run.ID)
	if err != nil {
		d.metrics.Turn("error")
		return Reply{}, err
	}
	if !status.Succeeded() {
		d.metrics.Turn("run_failed")
		failed := &RunFailedError{RunID: run.ID, Status: status}
		d.audit.Warn(failed.Error(), map[string]any{"run_id": run.ID})
		return Reply{}, failed
	}

	messages, err := d.remote.ListMessages(ctx, threadID, d.order)
	if err != nil {
		d.metrics.Turn("error")
		return Reply{}, remote.Wrap("messages.list", err)
	}
	newest, ok := d.newest(messages)
	if !ok {
		d.metrics.Turn("error")
		return Reply{}, ErrNoReply
	}
	if newest.Role != remote.RoleAssistant {
		loggerpkg.Warn(d.logger, "newest message is not from the assistant", map[string]any{
			"message_id": newest.ID,
			"role":       newest.Role,
			"order":      d.order,
		})
	}

	d.metrics.Turn("ok")
	d.audit.Info("GPT\n"+newest.Content, nil)
	return Reply{
		RunID:     run.ID,
		MessageID: newest.ID,
		Content:   newest.Content,
		Status:    status,
	}, nil
}

func (d *Driver) newest(messages []remote.Message) (remote.Message, bool) {
	if len(messages) == 0 {
		return remote.Message{}, false
	}
	if d.order == remote.OrderAsc {
		return messages[len(messages)-1], true
	}
	return messages[0], true
}

func (d *Driver) acquire(threadID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.busy[threadID]; ok {
		return false
	}
	d.busy[threadID] = struct{}{}
	return true
}

func (d *Driver) release(threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.busy, threadID)
}
