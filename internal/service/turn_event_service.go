package service

import (
	"context"
	"encoding/json"

	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/pkg/turn"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const TurnEventsTopic = "turn_events"

// TurnEventPublisher puts orchestrator transitions on the in-process bus.
type TurnEventPublisher struct {
	publisher message.Publisher
	topic     string
	logger    logger.ILogger
}

var _ turn.Observer = (*TurnEventPublisher)(nil)

func NewTurnEventPublisher(publisher message.Publisher, topic string, log logger.ILogger) *TurnEventPublisher {
	return &TurnEventPublisher{publisher: publisher, topic: topic, logger: log}
}

func (p *TurnEventPublisher) OnTurnEvent(_ context.Context, e turn.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("TURN_EVENTS", "Failed to marshal turn event", map[string]interface{}{"error": err.Error()})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session_id", e.SessionId)
	msg.Metadata.Set("type", string(e.Type))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Warn("TURN_EVENTS", "Failed to publish turn event", map[string]interface{}{
			"session_id": e.SessionId,
			"error":      err.Error(),
		})
	}
}

// TurnEventDelivery is satisfied by websocket.Hub.
type TurnEventDelivery interface {
	Publish(ctx context.Context, sessionID, msgType string, data interface{}) error
}

type ITurnEventConsumer interface {
	Consume(ctx context.Context) error
}

type turnEventConsumer struct {
	subscriber message.Subscriber
	topic      string
	delivery   TurnEventDelivery
	logger     logger.ILogger
}

func NewTurnEventConsumer(subscriber message.Subscriber, topic string, delivery TurnEventDelivery, log logger.ILogger) ITurnEventConsumer {
	return &turnEventConsumer{
		subscriber: subscriber,
		topic:      topic,
		delivery:   delivery,
		logger:     log,
	}
}

func (c *turnEventConsumer) Consume(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			c.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (c *turnEventConsumer) processMessage(ctx context.Context, msg *message.Message) {
	var e turn.Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		c.logger.Error("TURN_EVENTS", "Failed to unmarshal turn event", map[string]interface{}{"error": err.Error()})
		// Ack invalid messages to prevent infinite redelivery
		msg.Ack()
		return
	}

	if err := c.delivery.Publish(ctx, e.SessionId, string(e.Type), e); err != nil {
		c.logger.Warn("TURN_EVENTS", "Failed to deliver turn event", map[string]interface{}{
			"session_id": e.SessionId,
			"error":      err.Error(),
		})
	}
	msg.Ack()
}
