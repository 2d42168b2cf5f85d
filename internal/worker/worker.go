package worker

import (
	"context"
	"fmt"
	"log"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"
)

// SideEffectStore is the persistence surface for notification and audit rows
type SideEffectStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateAuditLog(ctx context.Context, a *models.AuditLog) error
}

// SideEffectWorker consumes fulfillment events and materializes the side
// effects: merchant/courier notifications and the audit trail. Failures are
// logged and the event is skipped; the transition that produced it is already
// committed.
type SideEffectWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        SideEffectStore
}

// NewSideEffectWorker creates a new side-effect worker
func NewSideEffectWorker(consumer *broker.Consumer, store SideEffectStore) *SideEffectWorker {
	w := &SideEffectWorker{
		consumer: consumer,
		store:    store,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	eventHandler.OnLogisticsAssigned(w.handleLogisticsAssigned)
	eventHandler.OnLogisticsRemoved(w.handleLogisticsRemoved)
	eventHandler.OnDeliveryAttempt(w.handleDeliveryAttempt)
	eventHandler.OnStockLow(w.handleStockLow)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *SideEffectWorker) Start(ctx context.Context) error {
	log.Println("Starting side-effect worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SideEffectWorker) Stop() error {
	log.Println("Stopping side-effect worker...")
	return w.consumer.Close()
}

func (w *SideEffectWorker) notify(ctx context.Context, userID int64, message, link string) error {
	n := &models.Notification{UserID: userID, Message: message, Link: link}
	if err := w.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	util.NotificationsWrittenTotal.Inc()
	return nil
}

func (w *SideEffectWorker) audit(ctx context.Context, actorID int64, entityType string, entityID int64, action, details string) error {
	a := &models.AuditLog{
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Details:    details,
	}
	if err := w.store.CreateAuditLog(ctx, a); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	util.AuditRecordsWrittenTotal.Inc()
	return nil
}

func (w *SideEffectWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	msg := fmt.Sprintf("Order #%d is now %s", event.OrderID, event.NewStatus)
	link := fmt.Sprintf("/orders/%d", event.OrderID)
	if err := w.notify(ctx, event.MerchantID, msg, link); err != nil {
		return err
	}

	details := fmt.Sprintf("status %s -> %s", event.OldStatus, event.NewStatus)
	return w.audit(ctx, event.ActorID, "order", event.OrderID, "STATUS_CHANGED", details)
}

func (w *SideEffectWorker) handleLogisticsAssigned(ctx context.Context, event *models.LogisticsAssignedEvent) error {
	link := fmt.Sprintf("/orders/%d", event.OrderID)

	merchantMsg := fmt.Sprintf("Order #%d has been handed to logistics (tracking %s)",
		event.OrderID, event.TrackingNumber)
	if err := w.notify(ctx, event.MerchantID, merchantMsg, link); err != nil {
		return err
	}

	courierMsg := fmt.Sprintf("You have been assigned order #%d", event.OrderID)
	if err := w.notify(ctx, event.LogisticsUserID, courierMsg, link); err != nil {
		return err
	}

	details := fmt.Sprintf("logistics user %d, tracking %s", event.LogisticsUserID, event.TrackingNumber)
	return w.audit(ctx, event.ActorID, "order", event.OrderID, "LOGISTICS_ASSIGNED", details)
}

func (w *SideEffectWorker) handleLogisticsRemoved(ctx context.Context, event *models.LogisticsRemovedEvent) error {
	if event.LogisticsUserID != 0 {
		msg := fmt.Sprintf("You have been unassigned from order #%d", event.OrderID)
		if err := w.notify(ctx, event.LogisticsUserID, msg, fmt.Sprintf("/orders/%d", event.OrderID)); err != nil {
			return err
		}
	}

	details := fmt.Sprintf("shipment %d, logistics user %d", event.ShipmentID, event.LogisticsUserID)
	return w.audit(ctx, event.ActorID, "order", event.OrderID, "LOGISTICS_REMOVED", details)
}

func (w *SideEffectWorker) handleDeliveryAttempt(ctx context.Context, event *models.DeliveryAttemptEvent) error {
	msg := fmt.Sprintf("Delivery attempt %d failed for order #%d", event.Attempts, event.OrderID)
	if err := w.notify(ctx, event.MerchantID, msg, fmt.Sprintf("/orders/%d", event.OrderID)); err != nil {
		return err
	}

	details := fmt.Sprintf("attempt %d", event.Attempts)
	return w.audit(ctx, event.ActorID, "shipment", event.ShipmentID, "DELIVERY_ATTEMPT", details)
}

func (w *SideEffectWorker) handleStockLow(ctx context.Context, event *models.StockLowEvent) error {
	details := fmt.Sprintf("warehouse %d, remaining %d, safety stock %d",
		event.WarehouseID, event.Remaining, event.SafetyStock)
	return w.audit(ctx, 0, "stock_allocation", event.ProductID, "STOCK_LOW", details)
}
