package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhyannv/anbud-assistant-go/pkg/metrics"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote/remotetest"
)

// recordingStreamer hands out a fixed stream and keeps the request.
type recordingStreamer struct {
	stream *remotetest.Stream
	err    error
	req    remote.CompletionRequest
}

func (r *recordingStreamer) StreamCompletion(_ context.Context, req remote.CompletionRequest) (remote.FragmentStream, error) {
	r.req = req
	if r.err != nil {
		return nil, r.err
	}
	return r.stream, nil
}

func TestAggregateConcatenatesFragments(t *testing.T) {
	s := &recordingStreamer{stream: remotetest.NewStream([]string{`{"a"`, "", `: 1}`}, nil)}
	m := metrics.New()
	var seen bytes.Buffer

	out, err := New(s, WithMetrics(m)).Aggregate(context.Background(), "sys", "user", &seen)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, out)
	assert.Equal(t, out, seen.String())
	assert.True(t, s.stream.Closed())
	assert.True(t, s.req.JSON)
	assert.Equal(t, "sys", s.req.System)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamFragments))
}

func TestAggregateEmptyStream(t *testing.T) {
	s := &recordingStreamer{stream: remotetest.NewStream(nil, nil)}
	out, err := New(s).Aggregate(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAggregateStreamError(t *testing.T) {
	s := &recordingStreamer{stream: remotetest.NewStream([]string{"partial"}, errors.New("connection reset"))}
	var seen bytes.Buffer

	out, err := New(s).Aggregate(context.Background(), "sys", "user", &seen)
	require.ErrorIs(t, err, remote.ErrRemote)
	assert.Empty(t, out)
	assert.Equal(t, "partial", seen.String())
	assert.True(t, s.stream.Closed())
}

func TestAggregateOpenError(t *testing.T) {
	s := &recordingStreamer{err: errors.New("401 unauthorized")}
	_, err := New(s).Aggregate(context.Background(), "sys", "user", nil)
	require.ErrorIs(t, err, remote.ErrRemote)
}

func TestAggregateRequiresUserContent(t *testing.T) {
	s := &recordingStreamer{stream: remotetest.NewStream(nil, nil)}
	_, err := New(s).Aggregate(context.Background(), "sys", " ", nil)
	require.Error(t, err)
	assert.Empty(t, s.req.User, "stream must not be opened")
}

func TestAggregateCancelled(t *testing.T) {
	s := &recordingStreamer{stream: remotetest.NewStream([]string{"a", "b"}, nil)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s).Aggregate(ctx, "sys", "user", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, s.stream.Closed())
}

func TestAggregateEqualsObservedProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("result equals the concatenation of observed fragments", prop.ForAll(
		func(fragments []string) bool {
			s := &recordingStreamer{stream: remotetest.NewStream(fragments, nil)}
			var seen bytes.Buffer
			out, err := New(s).Aggregate(context.Background(), "sys", "user", &seen)
			return err == nil && out == seen.String() && out == strings.Join(fragments, "")
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
