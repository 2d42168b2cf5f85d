package service

import (
	"context"
	"time"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher fires notification and audit events for accepted mutations.
// Dispatch is best-effort: a transition is committed even if its event never
// makes it out, so none of these methods return an error.
type Dispatcher interface {
	OrderStatusChanged(ctx context.Context, order *models.Order, oldStatus, newStatus string, actorID int64)
	LogisticsAssigned(ctx context.Context, order *models.Order, logisticsUserID int64, trackingNumber string, actorID int64)
	LogisticsRemoved(ctx context.Context, order *models.Order, shipmentID, logisticsUserID, actorID int64)
	DeliveryAttempt(ctx context.Context, order *models.Order, shipmentID int64, attempts int, actorID int64)
	StockLow(ctx context.Context, alloc *models.StockAllocation)
}

// EventDispatcher publishes side-effect events to the fulfillment topic.
type EventDispatcher struct {
	publisher *broker.EventPublisher
	timeout   time.Duration
	logger    *zap.Logger
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher(publisher *broker.EventPublisher, timeout time.Duration) *EventDispatcher {
	return &EventDispatcher{
		publisher: publisher,
		timeout:   timeout,
		logger:    util.GetLogger(),
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// publishCtx detaches from the request context deadline but keeps dispatch
// bounded, so a slow broker cannot stall the response path indefinitely.
func (d *EventDispatcher) publishCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.timeout)
}

func (d *EventDispatcher) record(eventType string, err error) {
	if err != nil {
		util.SideEffectsDroppedTotal.WithLabelValues(eventType).Inc()
		d.logger.Error("Failed to publish side-effect event",
			zap.String("event_type", eventType),
			zap.Error(err))
		return
	}
	util.SideEffectsPublishedTotal.WithLabelValues(eventType).Inc()
}

// OrderStatusChanged publishes the transition event for an accepted status change
func (d *EventDispatcher) OrderStatusChanged(_ context.Context, order *models.Order, oldStatus, newStatus string, actorID int64) {
	ctx, cancel := d.publishCtx()
	defer cancel()

	err := d.publisher.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:    order.ID,
		MerchantID: order.MerchantID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		ActorID:    actorID,
	})
	d.record(models.EventTypeOrderStatusChanged, err)
}

// LogisticsAssigned publishes the assignment event
func (d *EventDispatcher) LogisticsAssigned(_ context.Context, order *models.Order, logisticsUserID int64, trackingNumber string, actorID int64) {
	ctx, cancel := d.publishCtx()
	defer cancel()

	err := d.publisher.PublishLogisticsAssigned(ctx, &models.LogisticsAssignedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeLogisticsAssigned),
		OrderID:         order.ID,
		MerchantID:      order.MerchantID,
		LogisticsUserID: logisticsUserID,
		TrackingNumber:  trackingNumber,
		ActorID:         actorID,
	})
	d.record(models.EventTypeLogisticsAssigned, err)
}

// LogisticsRemoved publishes the unassignment event
func (d *EventDispatcher) LogisticsRemoved(_ context.Context, order *models.Order, shipmentID, logisticsUserID, actorID int64) {
	ctx, cancel := d.publishCtx()
	defer cancel()

	err := d.publisher.PublishLogisticsRemoved(ctx, &models.LogisticsRemovedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeLogisticsRemoved),
		OrderID:         order.ID,
		ShipmentID:      shipmentID,
		LogisticsUserID: logisticsUserID,
		ActorID:         actorID,
	})
	d.record(models.EventTypeLogisticsRemoved, err)
}

// DeliveryAttempt publishes a failed-attempt event
func (d *EventDispatcher) DeliveryAttempt(_ context.Context, order *models.Order, shipmentID int64, attempts int, actorID int64) {
	ctx, cancel := d.publishCtx()
	defer cancel()

	err := d.publisher.PublishDeliveryAttempt(ctx, &models.DeliveryAttemptEvent{
		BaseEvent:  newBaseEvent(models.EventTypeDeliveryAttempt),
		OrderID:    order.ID,
		ShipmentID: shipmentID,
		MerchantID: order.MerchantID,
		Attempts:   attempts,
		ActorID:    actorID,
	})
	d.record(models.EventTypeDeliveryAttempt, err)
}

// StockLow publishes a low-stock alert
func (d *EventDispatcher) StockLow(_ context.Context, alloc *models.StockAllocation) {
	ctx, cancel := d.publishCtx()
	defer cancel()

	util.StockLowAlertsTotal.Inc()
	err := d.publisher.PublishStockLow(ctx, &models.StockLowEvent{
		BaseEvent:   newBaseEvent(models.EventTypeStockLow),
		ProductID:   alloc.ProductID,
		WarehouseID: alloc.WarehouseID,
		Remaining:   alloc.AllocatedQuantity,
		SafetyStock: alloc.SafetyStock,
	})
	d.record(models.EventTypeStockLow, err)
}
