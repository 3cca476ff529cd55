package agent

import (
	"context"
	"errors"
	"time"

	"product-rec-agent/internal/dto"
)

// Synthetic failure texts. The orchestrator's classifier keys off these, so keep them stable.
const (
	StartingUpError  = "The server is starting up. Please try again in a few seconds."
	NoResponseError  = "No response from server"
	GenericFailError = "An error occurred while getting recommendations."
)

// ErrPageTakeover means the backend answered with a whole HTML document (404 + text/html).
// The caller is expected to render it in place of the app; the turn is not retried.
var ErrPageTakeover = errors.New("agent: backend returned a full page")

type PageTakeoverError struct {
	URL      string
	Document string
}

func (e *PageTakeoverError) Error() string {
	return ErrPageTakeover.Error() + " (" + e.URL + ")"
}

func (e *PageTakeoverError) Unwrap() error { return ErrPageTakeover }

// Transport performs exactly one agent call.
// HTTP and network failures come back as Success=false, never as error.
type Transport interface {
	Send(ctx context.Context, text, agentId string, turnCtx dto.TurnContext) (*dto.AgentResponse, error)
}

// NotificationType mirrors the payload types the hosting frame understands.
type NotificationType string

const (
	NotificationAPIError         NotificationType = "api_error"
	NotificationNetworkError     NotificationType = "network_error"
	NotificationToolAuthRequired NotificationType = "tool_auth_required"
)

type ToolAuth struct {
	ToolName    string   `json:"tool_name,omitempty"`
	ToolSource  string   `json:"tool_source,omitempty"`
	ActionNames []string `json:"action_names,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

type Notification struct {
	Type      NotificationType
	Message   string
	Status    int
	Endpoint  string
	Timestamp time.Time
	ToolAuth  *ToolAuth
}

// Notifier receives fire-and-forget diagnostics. Implementations must not block for long and
// their failures never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
