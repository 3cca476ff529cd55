package turn

import (
	"sync"

	"product-rec-agent/internal/entity"
)

type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateRetrying  State = "retrying"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Conversation is the in-memory side of one session. The in-flight flag makes turns single-flight.
type Conversation struct {
	mu sync.Mutex

	id           string
	messages     []entity.ChatMessage
	state        State
	inFlight     bool
	lastErr      string
	lastUserText string
}

func NewConversation(id string, messages []entity.ChatMessage) *Conversation {
	return &Conversation{
		id:       id,
		messages: append([]entity.ChatMessage{}, messages...),
		state:    StateIdle,
	}
}

// Snapshot is a consistent copy of a conversation's state.
type Snapshot struct {
	SessionId    string
	Messages     []entity.ChatMessage
	State        State
	InFlight     bool
	LastError    string
	LastUserText string
}

func (c *Conversation) Id() string {
	return c.id
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SessionId:    c.id,
		Messages:     append([]entity.ChatMessage{}, c.messages...),
		State:        c.state,
		InFlight:     c.inFlight,
		LastError:    c.lastErr,
		LastUserText: c.lastUserText,
	}
}

func (c *Conversation) Messages() []entity.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entity.ChatMessage{}, c.messages...)
}

func (c *Conversation) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Conversation) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return false
	}
	c.inFlight = true
	c.state = StateSending
	c.lastErr = ""
	return true
}

func (c *Conversation) appendMessage(msg entity.ChatMessage) []entity.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	return append([]entity.ChatMessage{}, c.messages...)
}

func (c *Conversation) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// finish releases the in-flight flag. Failed turns keep the user text for an explicit retry.
func (c *Conversation) finish(s State, errText, userText string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
	c.inFlight = false
	c.lastErr = errText
	if s == StateFailed {
		c.lastUserText = userText
	} else {
		c.lastUserText = ""
	}
}
