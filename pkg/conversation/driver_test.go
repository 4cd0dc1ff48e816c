package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/metrics"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote/remotetest"
	"github.com/minhyannv/anbud-assistant-go/pkg/run"
)

type fixture struct {
	fake        *remotetest.Fake
	threadID    string
	assistantID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	f := remotetest.New()
	a, err := f.CreateAssistant(ctx, remote.AssistantSpec{Name: "Anbudsassistent"})
	require.NoError(t, err)
	th, err := f.CreateThread(ctx)
	require.NoError(t, err)
	return fixture{fake: f, threadID: th.ID, assistantID: a.ID}
}

func (fx fixture) driver(opts ...Option) *Driver {
	return New(fx.fake, run.NewPoller(fx.fake, run.WithInterval(time.Millisecond)), opts...)
}

func TestSendTurnReturnsReply(t *testing.T) {
	fx := newFixture(t)
	m := metrics.New()

	reply, err := fx.driver(WithMetrics(m)).SendTurn(context.Background(), fx.threadID, fx.assistantID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "reply to Hello", reply.Content)
	assert.Equal(t, remote.RunStatusCompleted, reply.Status)
	assert.NotEmpty(t, reply.RunID)
	assert.Equal(t, 3, fx.fake.RunReads(reply.RunID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("ok")))

	msgs := fx.fake.Messages(fx.threadID)
	require.Len(t, msgs, 2)
	assert.Equal(t, remote.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
}

func TestSendTurnAscendingOrder(t *testing.T) {
	fx := newFixture(t)
	reply, err := fx.driver(WithOrder(remote.OrderAsc)).SendTurn(context.Background(), fx.threadID, fx.assistantID, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "reply to Hi", reply.Content)
}

func TestSendTurnRunFailed(t *testing.T) {
	for _, terminal := range []remote.RunStatus{remote.RunStatusFailed, remote.RunStatusCancelled, remote.RunStatusExpired} {
		t.Run(string(terminal), func(t *testing.T) {
			fx := newFixture(t)
			fx.fake.RunScript = []remote.RunStatus{remote.RunStatusQueued, terminal}

			_, err := fx.driver().SendTurn(context.Background(), fx.threadID, fx.assistantID, "Hello")
			require.ErrorIs(t, err, ErrRunFailed)

			var rf *RunFailedError
			require.ErrorAs(t, err, &rf)
			assert.Equal(t, terminal, rf.Status)
			assert.Equal(t, fmt.Sprintf("Run status is '%s'. Unable to complete the request.", terminal), err.Error())
			assert.Zero(t, fx.fake.CountCalls("messages.list"))
		})
	}
}

func TestSendTurnPartialFailureKeepsUserMessage(t *testing.T) {
	fx := newFixture(t)
	fx.fake.FailOn("runs.create", errors.New("429 rate limited"))
	var logs bytes.Buffer

	_, err := fx.driver(WithLogger(loggerpkg.NewWriterLogger(&logs), false)).
		SendTurn(context.Background(), fx.threadID, fx.assistantID, "Hello")
	require.ErrorIs(t, err, remote.ErrRemote)

	msgs := fx.fake.Messages(fx.threadID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Contains(t, logs.String(), "run not started")
}

func TestSendTurnMessageCreateFailure(t *testing.T) {
	fx := newFixture(t)
	fx.fake.FailOn("messages.create", errors.New("401 unauthorized"))

	_, err := fx.driver().SendTurn(context.Background(), fx.threadID, fx.assistantID, "Hello")
	require.ErrorIs(t, err, remote.ErrRemote)
	assert.Zero(t, fx.fake.CountCalls("runs.create"))
}

func TestSendTurnValidatesInput(t *testing.T) {
	fx := newFixture(t)
	d := fx.driver()
	ctx := context.Background()

	_, err := d.SendTurn(ctx, "", fx.assistantID, "Hello")
	require.Error(t, err)
	_, err = d.SendTurn(ctx, fx.threadID, "", "Hello")
	require.Error(t, err)
	_, err = d.SendTurn(ctx, fx.threadID, fx.assistantID, "  ")
	require.Error(t, err)
	assert.Zero(t, fx.fake.CountCalls("messages.create"))
}

func TestSendTurnWritesAudit(t *testing.T) {
	fx := newFixture(t)
	var audit bytes.Buffer

	_, err := fx.driver(WithAudit(loggerpkg.NewWriterLogger(&audit))).
		SendTurn(context.Background(), fx.threadID, fx.assistantID, "Hello")
	require.NoError(t, err)
	assert.Contains(t, audit.String(), "> Hello")
	assert.Contains(t, audit.String(), "GPT\nreply to Hello")
}

func TestSendTurnPropagatesTimeout(t *testing.T) {
	fx := newFixture(t)
	fx.fake.RunScript = []remote.RunStatus{remote.RunStatusInProgress}
	poller := run.NewPoller(fx.fake, run.WithInterval(2*time.Millisecond), run.WithTimeout(20*time.Millisecond))

	_, err := New(fx.fake, poller).SendTurn(context.Background(), fx.threadID, fx.assistantID, "Hello")
	require.ErrorIs(t, err, run.ErrTimeout)
	assert.Zero(t, fx.fake.CountCalls("messages.list"))
}

// blockingWaiter holds Wait until release is closed.
type blockingWaiter struct {
	entered chan struct{}
	release chan struct{}
}

func (w blockingWaiter) Wait(ctx context.Context, _, _ string) (remote.RunStatus, error) {
	close(w.entered)
	select {
	case <-w.release:
		return remote.RunStatusCompleted, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSendTurnRejectsConcurrentTurnOnThread(t *testing.T) {
	fx := newFixture(t)
	w := blockingWaiter{entered: make(chan struct{}), release: make(chan struct{})}
	d := New(fx.fake, w)

	done := make(chan error, 1)
	go func() {
		_, err := d.SendTurn(context.Background(), fx.threadID, fx.assistantID, "first")
		done <- err
	}()
	<-w.entered

	_, err := d.SendTurn(context.Background(), fx.threadID, fx.assistantID, "second")
	require.ErrorIs(t, err, ErrThreadBusy)

	close(w.release)
	require.NoError(t, <-done)
}

func TestSendTurnRepliesInOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("n turns leave n user/assistant pairs in order", prop.ForAll(
		func(prompts []string) bool {
			ctx := context.Background()
			f := remotetest.New()
			a, _ := f.CreateAssistant(ctx, remote.AssistantSpec{Name: "a"})
			th, _ := f.CreateThread(ctx)
			d := New(f, run.NewPoller(f, run.WithInterval(time.Microsecond)))

			for _, p := range prompts {
				reply, err := d.SendTurn(ctx, th.ID, a.ID, p)
				if err != nil || reply.Content != "reply to "+p {
					return false
				}
			}
			msgs := f.Messages(th.ID)
			if len(msgs) != 2*len(prompts) {
				return false
			}
			for i, p := range prompts {
				if msgs[2*i].Content != p || msgs[2*i+1].Content != "reply to "+p {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.Identifier()),
	))

	properties.TestingRun(t)
}

func TestReadsAfterTurnAreStable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	reply, err := fx.driver().SendTurn(ctx, fx.threadID, fx.assistantID, "Hei")
	require.NoError(t, err)

	first, err := fx.fake.GetRun(ctx, fx.threadID, reply.RunID)
	require.NoError(t, err)
	second, err := fx.fake.GetRun(ctx, fx.threadID, reply.RunID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, reply.Status, first.Status)

	before, err := fx.fake.ListMessages(ctx, fx.threadID, remote.OrderDesc)
	require.NoError(t, err)
	after, err := fx.fake.ListMessages(ctx, fx.threadID, remote.OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, reply.MessageID, before[0].ID)
	assert.Equal(t, reply.Content, before[0].Content)
}
