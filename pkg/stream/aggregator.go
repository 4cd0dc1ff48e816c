// Package stream turns a streaming chat completion into a single string while
// echoing every fragment to an observer.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/metrics"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

// Streamer opens a streaming completion.
type Streamer interface {
	StreamCompletion(ctx context.Context, req remote.CompletionRequest) (remote.FragmentStream, error)
}

type Aggregator struct {
	streamer Streamer
	logger   loggerpkg.Logger
	verbose  bool
	metrics  *metrics.Metrics
}

type Option func(*Aggregator)

func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
		a.verbose = verbose
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func New(s Streamer, opts ...Option) *Aggregator {
	a := &Aggregator{streamer: s, logger: loggerpkg.NopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Aggregate requests a JSON-object completion and returns the concatenated
// fragments once the stream ends. Each non-empty fragment is written to
// observer as soon as it arrives; a nil observer discards them. On a stream
// error the partial text is dropped. The stream is always closed.
func (a *Aggregator) Aggregate(ctx context.Context, system, user string, observer io.Writer) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", errors.New("user content is required")
	}
	if observer == nil {
		observer = io.Discard
	}

	s, err := a.streamer.StreamCompletion(ctx, remote.CompletionRequest{System: system, User: user, JSON: true})
	if err != nil {
		return "", remote.Wrap("chat.completions.stream", err)
	}
	defer func() { _ = s.Close() }()

	var b strings.Builder
	fragments := 0
	for s.Next() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		frag := s.Fragment()
		if frag == "" {
			continue
		}
		fragments++
		a.metrics.Fragment()
		b.WriteString(frag)
		if _, err := io.WriteString(observer, frag); err != nil {
			return "", fmt.Errorf("write fragment: %w", err)
		}
	}
	if err := s.Err(); err != nil {
		loggerpkg.Warn(a.logger, "stream ended with error", map[string]any{
			"fragments": fragments,
			"error":     err.Error(),
		})
		return "", remote.Wrap("chat.completions.stream", err)
	}

	loggerpkg.Debug(a.verbose, a.logger, "stream complete", map[string]any{
		"fragments": fragments,
		"bytes":     b.Len(),
	})
	return b.String(), nil
}
