// Package run waits for asynchronous assistant runs to reach a terminal status.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/metrics"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

const (
	DefaultInterval = time.Second
	DefaultTimeout  = 10 * time.Minute
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("run wait timed out")

// TimeoutError reports a run that was still non-terminal when the wait bound expired.
type TimeoutError struct {
	RunID      string
	LastStatus remote.RunStatus
	Elapsed    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run %s still %q after %s", e.RunID, e.LastStatus, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// StatusReader reads the current status of a run.
type StatusReader interface {
	GetRun(ctx context.Context, threadID, runID string) (remote.Run, error)
}

// Poller reads run status at a fixed interval until it is terminal.
type Poller struct {
	reader   StatusReader
	interval time.Duration
	timeout  time.Duration
	logger   loggerpkg.Logger
	verbose  bool
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the wait between reads.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTimeout bounds a single Wait. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.timeout = d
		}
	}
}

// WithLogger injects a logger; debug entries are written only when verbose.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
		p.verbose = verbose
	}
}

// WithMetrics records status reads and wait durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

func NewPoller(reader StatusReader, opts ...Option) *Poller {
	p := &Poller{
		reader:   reader,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   loggerpkg.NopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Wait blocks until the run is terminal and returns that status. Failure
// terminals are returned with a nil error. The first read is immediate; no
// read is issued after a terminal status has been observed. With a timeout,
// the last read happens at the deadline even when it falls between intervals.
func (p *Poller) Wait(ctx context.Context, threadID, runID string) (remote.RunStatus, error) {
	if threadID == "" || runID == "" {
		return "", errors.New("thread id and run id are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	waitCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	start := p.now()
	var last remote.RunStatus

	for reads := 1; ; reads++ {
		final, err := pace(ctx, waitCtx, limiter)
		if err != nil {
			return last, p.stopped(ctx, runID, last, start, err)
		}

		readCtx := waitCtx
		if final {
			readCtx = ctx
		}
		run, err := p.reader.GetRun(readCtx, threadID, runID)
		if err != nil {
			if readCtx.Err() != nil {
				return last, p.stopped(ctx, runID, last, start, err)
			}
			return last, remote.Wrap("runs.retrieve", err)
		}
		last = run.Status
		p.metrics.StatusRead(string(last))
		loggerpkg.Debug(p.verbose, p.logger, "run status", map[string]any{
			"run_id":    runID,
			"thread_id": threadID,
			"status":    last,
			"read":      reads,
			"final":     final,
		})

		if last.Terminal() {
			p.metrics.RunFinished(string(last), p.now().Sub(start))
			return last, nil
		}
		if final {
			return last, p.stopped(ctx, runID, last, start, ErrTimeout)
		}
	}
}

// pace blocks until the next read is due. rate.Limiter.Wait gives up as soon
// as the next token would land past the deadline; pace then sleeps until the
// deadline itself and reports a final read.
func pace(ctx, waitCtx context.Context, limiter *rate.Limiter) (final bool, err error) {
	err = limiter.Wait(waitCtx)
	if err == nil {
		return false, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	deadline, ok := waitCtx.Deadline()
	if !ok {
		return false, err
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}

// stopped maps a wait interruption to the caller's ctx error or a TimeoutError.
func (p *Poller) stopped(parent context.Context, runID string, last remote.RunStatus, start time.Time, cause error) error {
	if err := parent.Err(); err != nil {
		return err
	}
	elapsed := p.now().Sub(start)
	p.metrics.RunFinished("timeout", elapsed)
	loggerpkg.Warn(p.logger, "run wait timed out", map[string]any{
		"run_id":      runID,
		"last_status": last,
		"elapsed":     elapsed.String(),
		"cause":       cause.Error(),
	})
	return &TimeoutError{RunID: runID, LastStatus: last, Elapsed: elapsed}
}
