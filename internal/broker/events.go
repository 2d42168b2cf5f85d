package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"fulfillment-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing fulfillment events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderStatusChanged publishes an OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishLogisticsAssigned publishes a LogisticsAssigned event
func (ep *EventPublisher) PublishLogisticsAssigned(ctx context.Context, event *models.LogisticsAssignedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishLogisticsRemoved publishes a LogisticsRemoved event
func (ep *EventPublisher) PublishLogisticsRemoved(ctx context.Context, event *models.LogisticsRemovedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishDeliveryAttempt publishes a DeliveryAttempt event
func (ep *EventPublisher) PublishDeliveryAttempt(ctx context.Context, event *models.DeliveryAttemptEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockLow publishes a StockLow event
func (ep *EventPublisher) PublishStockLow(ctx context.Context, event *models.StockLowEvent) error {
	key := fmt.Sprintf("stock-%d-%d", event.WarehouseID, event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming fulfillment events to registered callbacks
type EventHandler struct {
	onOrderStatusChanged func(context.Context, *models.OrderStatusChangedEvent) error
	onLogisticsAssigned  func(context.Context, *models.LogisticsAssignedEvent) error
	onLogisticsRemoved   func(context.Context, *models.LogisticsRemovedEvent) error
	onDeliveryAttempt    func(context.Context, *models.DeliveryAttemptEvent) error
	onStockLow           func(context.Context, *models.StockLowEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderStatusChanged registers a handler for OrderStatusChanged events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = handler
}

// OnLogisticsAssigned registers a handler for LogisticsAssigned events
func (eh *EventHandler) OnLogisticsAssigned(handler func(context.Context, *models.LogisticsAssignedEvent) error) {
	eh.onLogisticsAssigned = handler
}

// OnLogisticsRemoved registers a handler for LogisticsRemoved events
func (eh *EventHandler) OnLogisticsRemoved(handler func(context.Context, *models.LogisticsRemovedEvent) error) {
	eh.onLogisticsRemoved = handler
}

// OnDeliveryAttempt registers a handler for DeliveryAttempt events
func (eh *EventHandler) OnDeliveryAttempt(handler func(context.Context, *models.DeliveryAttemptEvent) error) {
	eh.onDeliveryAttempt = handler
}

// OnStockLow registers a handler for StockLow events
func (eh *EventHandler) OnStockLow(handler func(context.Context, *models.StockLowEvent) error) {
	eh.onStockLow = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderStatusChanged:
		if eh.onOrderStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderStatusChanged event: %w", err)
			}
			return eh.onOrderStatusChanged(ctx, &event)
		}

	case models.EventTypeLogisticsAssigned:
		if eh.onLogisticsAssigned != nil {
			var event models.LogisticsAssignedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal LogisticsAssigned event: %w", err)
			}
			return eh.onLogisticsAssigned(ctx, &event)
		}

	case models.EventTypeLogisticsRemoved:
		if eh.onLogisticsRemoved != nil {
			var event models.LogisticsRemovedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal LogisticsRemoved event: %w", err)
			}
			return eh.onLogisticsRemoved(ctx, &event)
		}

	case models.EventTypeDeliveryAttempt:
		if eh.onDeliveryAttempt != nil {
			var event models.DeliveryAttemptEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DeliveryAttempt event: %w", err)
			}
			return eh.onDeliveryAttempt(ctx, &event)
		}

	case models.EventTypeStockLow:
		if eh.onStockLow != nil {
			var event models.StockLowEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockLow event: %w", err)
			}
			return eh.onStockLow(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
