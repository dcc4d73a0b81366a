package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"pos-edge-agent/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing sale lifecycle events. Publishing is
// best-effort: capture and sync correctness never depend on the stream.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleCaptured publishes SaleCaptured event
func (ep *EventPublisher) PublishSaleCaptured(ctx context.Context, event *models.SaleCapturedEvent) error {
	return ep.producer.PublishEvent(ctx, event.LocalID, event)
}

// PublishSaleSynced publishes SaleSynced event
func (ep *EventPublisher) PublishSaleSynced(ctx context.Context, event *models.SaleSyncedEvent) error {
	return ep.producer.PublishEvent(ctx, event.LocalID, event)
}

// PublishSaleSyncFailed publishes SaleSyncFailed event
func (ep *EventPublisher) PublishSaleSyncFailed(ctx context.Context, event *models.SaleSyncFailedEvent) error {
	return ep.producer.PublishEvent(ctx, event.LocalID, event)
}

// EventHandler routes incoming catalog events
type EventHandler struct {
	onProductUpdated func(context.Context, *models.ProductUpdateEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnProductUpdated registers a handler for ProductUpdated events
func (eh *EventHandler) OnProductUpdated(handler func(context.Context, *models.ProductUpdateEvent) error) {
	eh.onProductUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeProductUpdated:
		if eh.onProductUpdated != nil {
			var event models.ProductUpdateEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProductUpdated event: %w", err)
			}
			return eh.onProductUpdated(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
