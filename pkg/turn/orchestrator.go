package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"product-rec-agent/internal/dto"
	"product-rec-agent/internal/entity"
	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/pkg/agent"
	"product-rec-agent/pkg/payload"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const logModule = "TURN"

var (
	ErrEmptyInput   = errors.New("turn: input is empty")
	ErrTurnInFlight = errors.New("turn: another turn is in flight for this session")
)

// Policy bounds the retry loop. Delay grows linearly with the attempt number.
type Policy struct {
	MaxRetries  int
	BackoffBase time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, BackoffBase: 2 * time.Second}
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.BackoffBase
}

// Sleeper suspends a turn between attempts.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep waits for d or until ctx is done.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Persister is the session collection the orchestrator writes after every turn.
type Persister interface {
	Upsert(ctx context.Context, sessionId string, messages []entity.ChatMessage) entity.ChatSession
}

type EventType string

const (
	EventStarted   EventType = "turn.started"
	EventRetrying  EventType = "turn.retrying"
	EventCompleted EventType = "turn.completed"
	EventFailed    EventType = "turn.failed"
)

type Event struct {
	Type      EventType           `json:"type"`
	SessionId string              `json:"sessionId"`
	Attempt   int                 `json:"attempt"`
	DelayMs   int64               `json:"delayMs,omitempty"`
	Error     string              `json:"error,omitempty"`
	UserText  string              `json:"userText,omitempty"`
	Message   *entity.ChatMessage `json:"message,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// Observer receives turn transitions. It must not block the turn.
type Observer interface {
	OnTurnEvent(ctx context.Context, e Event)
}

type nopObserver struct{}

func (nopObserver) OnTurnEvent(context.Context, Event) {}

// Outcome is what a terminal state hands back to the caller.
type Outcome struct {
	SessionId string
	State     State
	Messages  []entity.ChatMessage
	Reply     *entity.ChatMessage
	Session   entity.ChatSession

	// Failed turns only
	Err      string
	UserText string

	Attempts int
	Delays   []time.Duration

	// Set when the backend answered with a full HTML page instead of an agent reply.
	TakeoverURL  string
	TakeoverHTML string
}

type Orchestrator struct {
	transport agent.Transport
	store     Persister
	agentId   string
	policy    Policy
	sleep     Sleeper
	now       func() time.Time
	newId     func() string
	observer  Observer
	logger    logger.ILogger
	tracer    trace.Tracer
}

type Option func(*Orchestrator)

func WithAgentId(id string) Option {
	return func(o *Orchestrator) {
		o.agentId = id
	}
}

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newId = gen
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewOrchestrator(transport agent.Transport, store Persister, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport: transport,
		store:     store,
		policy:    DefaultPolicy(),
		sleep:     ContextSleep,
		now:       time.Now,
		newId:     func() string { return uuid.New().String() },
		observer:  nopObserver{},
		logger:    logger.NewNopLogger(),
		tracer:    otel.Tracer("product-rec-agent/turn"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Send runs one turn to a terminal state. It returns ErrEmptyInput or ErrTurnInFlight without
// touching the conversation; every other failure is reported through Outcome.
func (o *Orchestrator) Send(ctx context.Context, conv *Conversation, text string) (*Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if !conv.begin() {
		return nil, ErrTurnInFlight
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		// A panicking collaborator must not leave the session in flight forever.
		conv.finish(StateFailed, agent.GenericFailError, text)
	}()

	ctx, span := o.tracer.Start(ctx, "turn.Send", trace.WithAttributes(
		attribute.String("session.id", conv.Id()),
	))
	defer span.End()

	userMsg := entity.ChatMessage{
		Id:        o.newId(),
		Role:      entity.RoleUser,
		Content:   text,
		Timestamp: o.nowMillis(),
	}
	conv.appendMessage(userMsg)

	o.emit(ctx, Event{Type: EventStarted, SessionId: conv.Id(), Attempt: 1, UserText: text})

	out := &Outcome{SessionId: conv.Id(), UserText: text}

	var (
		resp    *dto.AgentResponse
		errText string
	)
	for {
		out.Attempts++
		var takeover *agent.PageTakeoverError
		resp, errText, takeover = o.attempt(ctx, conv.Id(), text, out.Attempts)

		if takeover != nil {
			out.TakeoverURL = takeover.URL
			out.TakeoverHTML = takeover.Document
			break
		}
		if errText == "" {
			break
		}

		retry := out.Attempts - 1
		if !Classify(errText).Transient || retry >= o.policy.MaxRetries {
			break
		}

		delay := o.policy.Delay(retry + 1)
		out.Delays = append(out.Delays, delay)
		conv.setState(StateRetrying)
		o.logger.Warn(logModule, "Transient agent failure, retrying", map[string]interface{}{
			"session_id": conv.Id(),
			"attempt":    out.Attempts,
			"delay_ms":   delay.Milliseconds(),
			"error":      errText,
		})
		o.emit(ctx, Event{Type: EventRetrying, SessionId: conv.Id(), Attempt: out.Attempts, DelayMs: delay.Milliseconds(), Error: errText})

		if err := o.sleep(ctx, delay); err != nil {
			break
		}
		conv.setState(StateSending)
	}

	// The turn always runs to completion, so persistence ignores caller cancellation.
	persistCtx := context.WithoutCancel(ctx)

	if errText != "" {
		out.State = StateFailed
		out.Err = errText
		out.Messages = conv.Messages()
		out.Session = o.store.Upsert(persistCtx, conv.Id(), out.Messages)
		conv.finish(StateFailed, errText, text)
		finished = true

		span.SetStatus(codes.Error, errText)
		o.logger.Error(logModule, "Turn failed", map[string]interface{}{
			"session_id": conv.Id(),
			"attempts":   out.Attempts,
			"error":      errText,
		})
		o.emit(ctx, Event{Type: EventFailed, SessionId: conv.Id(), Attempt: out.Attempts, Error: errText, UserText: text})
		return out, nil
	}

	reply := o.assistantMessage(resp)
	out.State = StateCompleted
	out.Reply = &reply
	out.Messages = conv.appendMessage(reply)
	out.Session = o.store.Upsert(persistCtx, conv.Id(), out.Messages)
	conv.finish(StateCompleted, "", text)
	finished = true

	o.logger.Info(logModule, "Turn completed", map[string]interface{}{
		"session_id":      conv.Id(),
		"attempts":        out.Attempts,
		"recommendations": len(reply.Recommendations),
	})
	o.emit(ctx, Event{Type: EventCompleted, SessionId: conv.Id(), Attempt: out.Attempts, Message: &reply})
	return out, nil
}

// attempt performs one transport call and reduces it to either a response or failure text.
func (o *Orchestrator) attempt(ctx context.Context, sessionId, text string, n int) (*dto.AgentResponse, string, *agent.PageTakeoverError) {
	ctx, span := o.tracer.Start(ctx, "turn.attempt", trace.WithAttributes(
		attribute.Int("turn.attempt", n),
	))
	defer span.End()

	o.logger.Debug(logModule, "Sending turn to agent", map[string]interface{}{
		"session_id": sessionId,
		"attempt":    n,
	})

	resp, err := o.transport.Send(ctx, text, o.agentId, dto.TurnContext{SessionId: sessionId})
	if err != nil {
		span.RecordError(err)
		var takeover *agent.PageTakeoverError
		if errors.As(err, &takeover) {
			return nil, err.Error(), takeover
		}
		return nil, err.Error(), nil
	}
	if resp == nil {
		return nil, agent.GenericFailError, nil
	}
	if !resp.Success {
		if resp.Error == "" {
			return resp, agent.GenericFailError, nil
		}
		return resp, resp.Error, nil
	}
	return resp, "", nil
}

func (o *Orchestrator) assistantMessage(resp *dto.AgentResponse) entity.ChatMessage {
	var raw any
	var fallback string
	if resp.Response != nil {
		raw = resp.Response.Result
		fallback = resp.Response.Message
	}
	p := payload.ParseWithFallback(raw, fallback)

	return entity.ChatMessage{
		Id:                  o.newId(),
		Role:                entity.RoleAssistant,
		Content:             p.Message,
		Recommendations:     p.Recommendations,
		FollowUpSuggestions: p.FollowUpSuggestions,
		Timestamp:           o.nowMillis(),
	}
}

func (o *Orchestrator) emit(ctx context.Context, e Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(logModule, "Turn observer panicked", map[string]interface{}{
				"session_id": e.SessionId,
				"event":      string(e.Type),
				"error":      fmt.Sprint(r),
			})
		}
	}()

	e.Timestamp = o.nowMillis()
	o.observer.OnTurnEvent(ctx, e)
}

func (o *Orchestrator) nowMillis() int64 {
	return o.now().UnixMilli()
}
