package service

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// OrderStore is the persistence surface the order service needs.
// *store.Store satisfies it; tests substitute an in-memory implementation.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, scope models.OrderScope, f store.OrderFilter) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatusCAS(ctx context.Context, orderID int64, from, to string, heldFrom *string) error
	GetShipmentByOrderID(ctx context.Context, orderID int64) (*models.Shipment, error)
	AllocateOrderTx(ctx context.Context, orderID, warehouseID int64, items []models.OrderItem) ([]models.StockAllocation, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) error
}

// OrderService owns order reads and status transitions, all behind the single
// actor scoping rule.
type OrderService struct {
	store      OrderStore
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st OrderStore, dispatcher Dispatcher) *OrderService {
	return &OrderService{
		store:      st,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// GetForActor returns the order only when the actor's scope allows it
func (s *OrderService) GetForActor(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkOrderAccess(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

// OrderDetail bundles an order with its items and shipment (nil before assignment)
type OrderDetail struct {
	Order    *models.Order      `json:"order"`
	Items    []models.OrderItem `json:"items"`
	Shipment *models.Shipment   `json:"shipment,omitempty"`
}

// GetDetailForActor returns the order with items and shipment, scoped
func (s *OrderService) GetDetailForActor(ctx context.Context, actor models.Actor, orderID int64) (*OrderDetail, error) {
	order, err := s.GetForActor(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	detail := &OrderDetail{Order: order, Items: items}

	shipment, err := s.store.GetShipmentByOrderID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	} else {
		detail.Shipment = shipment
	}

	return detail, nil
}

// ListForActor returns orders visible to the actor, newest first
func (s *OrderService) ListForActor(ctx context.Context, actor models.Actor, f store.OrderFilter) ([]models.Order, error) {
	scope, err := ScopeForActor(actor)
	if err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, scope, f)
}

// UpdateStatus validates and applies a single status transition. On success
// the order row and the shipment timestamp (if any) are updated together and
// the side-effect dispatcher is invoked. A rejected transition leaves
// everything untouched.
func (s *OrderService) UpdateStatus(ctx context.Context, actor models.Actor, orderID int64, target string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	order, err := s.GetForActor(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(order, actor, target); err != nil {
		util.TransitionsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	// Entering ON_HOLD records where the order came from so the operator can
	// resume it; every other transition clears the marker.
	var heldFrom *string
	if target == models.StatusOnHold {
		prev := order.Status
		heldFrom = &prev
	}

	oldStatus := order.Status
	if err := s.store.UpdateOrderStatusCAS(ctx, order.ID, oldStatus, target, heldFrom); err != nil {
		if errors.Is(err, models.ErrConflict) {
			util.TransitionsRejectedTotal.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	util.TransitionsTotal.WithLabelValues(target).Inc()
	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", oldStatus),
		zap.String("to", target),
		zap.Int64("actor_id", actor.ID))

	order.Status = target
	order.HeldFromStatus = heldFrom

	s.dispatcher.OrderStatusChanged(ctx, order, oldStatus, target, actor.ID)
	return order, nil
}

// bulkResult keeps the per-order outcome even though callers only see the
// aggregate count; the guard logic is exactly the single-item path.
type bulkResult struct {
	OrderID int64
	Err     error
}

// BulkSetStatus applies UpdateStatus to each id. Partial success is expected:
// ids that fail any guard are skipped and only the success count is returned.
func (s *OrderService) BulkSetStatus(ctx context.Context, actor models.Actor, orderIDs []int64, target string) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.BulkSetStatus")
	defer span.End()

	results := make([]bulkResult, 0, len(orderIDs))
	updated := 0
	for _, id := range orderIDs {
		_, err := s.UpdateStatus(ctx, actor, id, target)
		results = append(results, bulkResult{OrderID: id, Err: err})
		if err == nil {
			updated++
		}
	}

	for _, r := range results {
		if r.Err != nil {
			s.logger.Debug("Bulk status update skipped order",
				zap.Int64("order_id", r.OrderID),
				zap.String("target", target),
				zap.Error(r.Err))
		}
	}

	return updated, nil
}

// Allocate confirms warehouse stock for every line item and moves the order
// NEW -> AWAITING_ALLOC. The stock decrement and the status change are one
// atomic unit; the CAS on NEW makes the per-item decrement exactly-once.
func (s *OrderService) Allocate(ctx context.Context, actor models.Actor, orderID, warehouseID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Allocate")
	defer span.End()

	order, err := s.GetForActor(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(order, actor, models.StatusAwaitingAlloc); err != nil {
		util.TransitionsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("order %d has no items to allocate", orderID)
	}

	allocs, err := s.store.AllocateOrderTx(ctx, orderID, warehouseID, items)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.StockDecrementsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		}
		return nil, err
	}

	util.OrdersAllocatedTotal.Inc()
	util.TransitionsTotal.WithLabelValues(models.StatusAwaitingAlloc).Inc()
	s.logger.Info("Order allocated",
		zap.Int64("order_id", orderID),
		zap.Int64("warehouse_id", warehouseID),
		zap.Int("items", len(items)))

	oldStatus := order.Status
	order.Status = models.StatusAwaitingAlloc
	order.FulfillmentWarehouseID = &warehouseID

	s.dispatcher.OrderStatusChanged(ctx, order, oldStatus, models.StatusAwaitingAlloc, actor.ID)
	for i := range allocs {
		if allocs[i].AllocatedQuantity <= allocs[i].SafetyStock {
			s.dispatcher.StockLow(ctx, &allocs[i])
		}
	}

	return order, nil
}

// MarkNotificationRead flips the read flag on one of the actor's notifications
func (s *OrderService) MarkNotificationRead(ctx context.Context, actor models.Actor, notificationID int64) error {
	return s.store.MarkNotificationRead(ctx, notificationID, actor.ID)
}

// rejectReason maps a validation error to a metrics label
func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, models.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, models.ErrInvalidTransition):
		return "invalid_transition"
	}
	return "other"
}
