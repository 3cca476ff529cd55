package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"product-rec-agent/internal/dto"
	"product-rec-agent/internal/entity"
	"product-rec-agent/pkg/agent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStep struct {
	resp *dto.AgentResponse
	err  error
}

type scriptedTransport struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls []dto.TurnContext
	texts []string
	block chan struct{}

	// When set, the conversation's messages are captured at every call.
	conv *Conversation
	seen [][]entity.ChatMessage
}

func (s *scriptedTransport) Send(ctx context.Context, text, agentId string, turnCtx dto.TurnContext) (*dto.AgentResponse, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, turnCtx)
	s.texts = append(s.texts, text)
	if s.conv != nil {
		s.seen = append(s.seen, s.conv.Messages())
	}
	if len(s.steps) == 0 {
		return nil, errors.New("unexpected call")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.resp, step.err
}

type fakePersister struct {
	mu     sync.Mutex
	calls  [][]entity.ChatMessage
	panics bool
}

func (f *fakePersister) Upsert(_ context.Context, sessionId string, messages []entity.ChatMessage) entity.ChatSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.panics {
		panic("storage driver bug")
	}

	recs := 0
	for _, m := range messages {
		recs += len(m.Recommendations)
	}
	return entity.ChatSession{Id: sessionId, Messages: messages, RecommendationCount: recs}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) OnTurnEvent(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func ok(result any) scriptedStep {
	return scriptedStep{resp: &dto.AgentResponse{Success: true, Response: &dto.AgentReply{Status: "success", Result: result}}}
}

func fail(errText string) scriptedStep {
	return scriptedStep{resp: &dto.AgentResponse{Success: false, Error: errText}}
}

type harness struct {
	orch      *Orchestrator
	transport *scriptedTransport
	store     *fakePersister
	observer  *recordingObserver
	slept     []time.Duration
}

func newHarness(steps ...scriptedStep) *harness {
	h := &harness{
		transport: &scriptedTransport{steps: steps},
		store:     &fakePersister{},
		observer:  &recordingObserver{},
	}
	seq := 0
	h.orch = NewOrchestrator(h.transport, h.store,
		WithAgentId("agent-1"),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			return nil
		}),
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("msg-%d", seq)
		}),
		WithObserver(h.observer),
	)
	return h
}

func TestSendCompletesOnFirstAttempt(t *testing.T) {
	h := newHarness(ok(`{"message":"Here are matches","recommendations":[{"product_name":"X","price":"$249/month"}],"follow_up_suggestions":["Tell me more"]}`))
	conv := NewConversation("s-1", nil)

	out, err := h.orch.Send(context.Background(), conv, "Need a CRM under $300/month")

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, h.slept)

	require.Len(t, out.Messages, 2)
	assert.Equal(t, entity.RoleUser, out.Messages[0].Role)
	assert.Equal(t, "Need a CRM under $300/month", out.Messages[0].Content)

	reply := out.Messages[1]
	assert.Equal(t, entity.RoleAssistant, reply.Role)
	assert.Equal(t, "Here are matches", reply.Content)
	require.Len(t, reply.Recommendations, 1)
	assert.Equal(t, "X", reply.Recommendations[0].ProductName)
	assert.Equal(t, []string{"Tell me more"}, reply.FollowUpSuggestions)
	assert.Equal(t, 1, out.Session.RecommendationCount)

	require.Len(t, h.transport.calls, 1)
	assert.Equal(t, "s-1", h.transport.calls[0].SessionId)
	assert.Len(t, h.store.calls, 1)
	assert.Equal(t, []EventType{EventStarted, EventCompleted}, h.observer.types())

	snap := conv.Snapshot()
	assert.False(t, snap.InFlight)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Empty(t, snap.LastError)
}

func TestSendRetriesTransientFailures(t *testing.T) {
	h := newHarness(
		fail(agent.StartingUpError),
		fail("Backend returned 503 error for http://agent/api/agent"),
		ok(map[string]any{"message": "Finally"}),
	)
	conv := NewConversation("s-1", nil)

	out, err := h.orch.Send(context.Background(), conv, "hello")

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.slept)
	assert.Equal(t, h.slept, out.Delays)
	assert.Equal(t, "Finally", out.Reply.Content)

	// The user message is appended once, not per attempt.
	require.Len(t, out.Messages, 2)
	assert.Equal(t, []EventType{EventStarted, EventRetrying, EventRetrying, EventCompleted}, h.observer.types())
}

func TestSendFailsAfterRetryCeiling(t *testing.T) {
	h := newHarness(
		fail(agent.NoResponseError),
		fail("Network error. Cannot connect"),
		fail("Backend returned 503 error for x"),
	)
	conv := NewConversation("s-1", nil)

	out, err := h.orch.Send(context.Background(), conv, "hello")

	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "Backend returned 503 error for x", out.Err)
	assert.Equal(t, "hello", out.UserText)
	assert.Nil(t, out.Reply)

	require.Len(t, out.Messages, 1)
	assert.Equal(t, entity.RoleUser, out.Messages[0].Role)
	require.Len(t, h.store.calls, 1)
	assert.Len(t, h.store.calls[0], 1)

	snap := conv.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "Backend returned 503 error for x", snap.LastError)
	assert.Equal(t, "hello", snap.LastUserText)
	assert.False(t, snap.InFlight)
}

func TestSendDoesNotRetryTerminalFailures(t *testing.T) {
	tests := []struct {
		name    string
		step    scriptedStep
		wantErr string
	}{
		{name: "reported error", step: fail("agent_id is invalid"), wantErr: "agent_id is invalid"},
		{name: "empty error text", step: fail(""), wantErr: agent.GenericFailError},
		{name: "lowercase network error", step: fail("network error"), wantErr: "network error"},
		{name: "thrown error", step: scriptedStep{err: errors.New("marshal request: boom")}, wantErr: "marshal request: boom"},
		{name: "nil response", step: scriptedStep{}, wantErr: agent.GenericFailError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.step)
			out, err := h.orch.Send(context.Background(), NewConversation("s-1", nil), "hello")

			require.NoError(t, err)
			assert.Equal(t, StateFailed, out.State)
			assert.Equal(t, 1, out.Attempts)
			assert.Equal(t, tt.wantErr, out.Err)
			assert.Empty(t, h.slept)
		})
	}
}

func TestSendThrownTransientErrorIsRetried(t *testing.T) {
	h := newHarness(
		scriptedStep{err: errors.New("dial tcp: Cannot connect")},
		ok("plain answer"),
	)

	out, err := h.orch.Send(context.Background(), NewConversation("s-1", nil), "hello")

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, "plain answer", out.Reply.Content)
	assert.Equal(t, []time.Duration{2 * time.Second}, h.slept)
}

func TestSendPageTakeoverIsNotRetried(t *testing.T) {
	h := newHarness(scriptedStep{err: &agent.PageTakeoverError{URL: "http://agent/api/agent", Document: "<html>503</html>"}})

	out, err := h.orch.Send(context.Background(), NewConversation("s-1", nil), "hello")

	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "<html>503</html>", out.TakeoverHTML)
	assert.Empty(t, h.slept)
}

func TestSendRejectsEmptyInput(t *testing.T) {
	h := newHarness()
	conv := NewConversation("s-1", nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		out, err := h.orch.Send(context.Background(), conv, text)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}

	assert.Empty(t, conv.Messages())
	assert.Empty(t, h.transport.calls)
	assert.Empty(t, h.store.calls)
	assert.Equal(t, StateIdle, conv.Snapshot().State)
}

func TestSendIsSingleFlight(t *testing.T) {
	h := newHarness(ok("first"))
	h.transport.block = make(chan struct{})
	conv := NewConversation("s-1", nil)

	done := make(chan *Outcome)
	go func() {
		out, _ := h.orch.Send(context.Background(), conv, "first")
		done <- out
	}()

	require.Eventually(t, conv.InFlight, time.Second, time.Millisecond)

	out, err := h.orch.Send(context.Background(), conv, "second")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(h.transport.block)
	first := <-done
	require.NotNil(t, first)
	assert.Equal(t, StateCompleted, first.State)
	assert.Len(t, first.Messages, 2)
	assert.Equal(t, []string{"first"}, h.transport.texts)
}

func TestSendRetryOfSameTextCreatesNewMessage(t *testing.T) {
	h := newHarness(fail("bad request"), ok("ok now"))
	conv := NewConversation("s-1", nil)

	first, err := h.orch.Send(context.Background(), conv, "hello")
	require.NoError(t, err)
	require.Equal(t, StateFailed, first.State)

	second, err := h.orch.Send(context.Background(), conv, first.UserText)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, second.State)

	require.Len(t, second.Messages, 3)
	assert.Equal(t, "hello", second.Messages[0].Content)
	assert.Equal(t, "hello", second.Messages[1].Content)
	assert.NotEqual(t, second.Messages[0].Id, second.Messages[1].Id)
	assert.Empty(t, conv.Snapshot().LastError)
}

func TestSendSleepInterruptedByCancellation(t *testing.T) {
	h := newHarness(fail(agent.NoResponseError))
	ctx, cancel := context.WithCancel(context.Background())
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ContextSleep(ctx, d)
	}

	out, err := h.orch.Send(ctx, NewConversation("s-1", nil), "hello")

	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, agent.NoResponseError, out.Err)
	assert.Len(t, h.store.calls, 1)
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
}

func TestSendAppendsUserMessageBeforeEveryAttempt(t *testing.T) {
	h := newHarness(
		fail(agent.StartingUpError),
		fail(agent.NoResponseError),
		ok("done"),
	)
	conv := NewConversation("s-1", []entity.ChatMessage{
		{Id: "old-1", Role: entity.RoleUser, Content: "earlier", Timestamp: 1},
		{Id: "old-2", Role: entity.RoleAssistant, Content: "earlier reply", Timestamp: 2},
	})
	h.transport.conv = conv

	out, err := h.orch.Send(context.Background(), conv, "Need a CRM")

	require.NoError(t, err)
	require.Equal(t, StateCompleted, out.State)
	require.Len(t, h.transport.seen, 3)

	for i, msgs := range h.transport.seen {
		require.Len(t, msgs, 3, "attempt %d", i+1)
		last := msgs[len(msgs)-1]
		assert.Equal(t, entity.RoleUser, last.Role, "attempt %d", i+1)
		assert.Equal(t, "Need a CRM", last.Content, "attempt %d", i+1)
		assert.Equal(t, "msg-1", last.Id, "attempt %d", i+1)
	}
	assert.Len(t, out.Messages, 4)
}

type panickingObserver struct{}

func (panickingObserver) OnTurnEvent(context.Context, Event) { panic("websocket hub bug") }

func TestSendSurvivesPanickingObserver(t *testing.T) {
	h := newHarness(ok("fine"))
	WithObserver(panickingObserver{})(h.orch)
	conv := NewConversation("s-1", nil)

	var (
		out *Outcome
		err error
	)
	require.NotPanics(t, func() {
		out, err = h.orch.Send(context.Background(), conv, "hello")
	})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, out.State)
	assert.False(t, conv.InFlight())
}

func TestSendReleasesSessionWhenPersisterPanics(t *testing.T) {
	h := newHarness(ok("first"), ok("second"))
	h.store.panics = true
	conv := NewConversation("s-1", nil)

	assert.Panics(t, func() {
		_, _ = h.orch.Send(context.Background(), conv, "hello")
	})

	snap := conv.Snapshot()
	assert.False(t, snap.InFlight)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "hello", snap.LastUserText)

	h.store.panics = false
	out, err := h.orch.Send(context.Background(), conv, "hello again")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, out.State)
}
