package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignmentStore is the persistence surface the assignment service needs
type AssignmentStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetWarehouseByID(ctx context.Context, id int64) (*models.Warehouse, error)
	GetShipmentByID(ctx context.Context, id int64) (*models.Shipment, error)
	AssignLogisticsTx(ctx context.Context, orderID int64, fromStatus string, logisticsUserID int64, trackingNumber, carrierName string) error
	ClearLogisticsAssignment(ctx context.Context, orderID int64) error
	CreateLogisticsRegion(ctx context.Context, logisticsUserID, warehouseID int64) error
	IncrementDeliveryAttempts(ctx context.Context, shipmentID int64) (int, error)
}

// assignableFrom are the statuses an assignment call accepts. Assignment
// jumps straight to PICKED_UP: from NEW it skips the whole pre-dispatch
// pipeline. PICKED_UP is included so an operator can rebind a courier; the
// shipment upsert keeps that idempotent.
var assignableFrom = map[string]bool{
	models.StatusNew:           true,
	models.StatusAwaitingAlloc: true,
	models.StatusDispatched:    true,
	models.StatusPickedUp:      true,
}

// AssignmentService binds logistics actors to orders and warehouses
type AssignmentService struct {
	store      AssignmentStore
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(st AssignmentStore, dispatcher Dispatcher) *AssignmentService {
	return &AssignmentService{
		store:      st,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// AssignLogistics binds a logistics user to an order, moves it to PICKED_UP
// and lazily creates the shipment. The order update and shipment creation are
// one atomic unit; repeating the call never creates a second shipment.
func (s *AssignmentService) AssignLogistics(ctx context.Context, actor models.Actor, orderID, logisticsUserID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "AssignmentService.AssignLogistics")
	defer span.End()

	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("role %s may not assign logistics: %w", actor.Role, models.ErrAccessDenied)
	}

	user, err := s.store.GetUserByID(ctx, logisticsUserID)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleLogistics {
		return nil, fmt.Errorf("user %d is not a logistics user: %w", logisticsUserID, models.ErrNotFound)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !assignableFrom[order.Status] {
		return nil, fmt.Errorf("order %d in status %s cannot be assigned: %w",
			orderID, order.Status, models.ErrInvalidTransition)
	}

	trackingNumber := fmt.Sprintf("TRK-%s", uuid.New().String()[:8])
	if err := s.store.AssignLogisticsTx(ctx, orderID, order.Status, logisticsUserID, trackingNumber, user.Name); err != nil {
		return nil, err
	}

	util.AssignmentsTotal.Inc()
	util.TransitionsTotal.WithLabelValues(models.StatusPickedUp).Inc()
	s.logger.Info("Logistics assigned",
		zap.Int64("order_id", orderID),
		zap.Int64("logistics_user_id", logisticsUserID),
		zap.String("tracking_number", trackingNumber))

	oldStatus := order.Status
	order.Status = models.StatusPickedUp
	order.AssignedLogisticsID = &logisticsUserID

	s.dispatcher.LogisticsAssigned(ctx, order, logisticsUserID, trackingNumber, actor.ID)
	if oldStatus != models.StatusPickedUp {
		s.dispatcher.OrderStatusChanged(ctx, order, oldStatus, models.StatusPickedUp, actor.ID)
	}

	return order, nil
}

// RemoveLogistics clears the logistics binding for the shipment's order.
// The order status is deliberately left where it is.
func (s *AssignmentService) RemoveLogistics(ctx context.Context, actor models.Actor, shipmentID int64) error {
	ctx, span := util.StartSpan(ctx, "AssignmentService.RemoveLogistics")
	defer span.End()

	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("role %s may not remove logistics: %w", actor.Role, models.ErrAccessDenied)
	}

	shipment, err := s.store.GetShipmentByID(ctx, shipmentID)
	if err != nil {
		return err
	}

	order, err := s.store.GetOrderByID(ctx, shipment.OrderID)
	if err != nil {
		return err
	}

	var removedUserID int64
	if order.AssignedLogisticsID != nil {
		removedUserID = *order.AssignedLogisticsID
	}

	if err := s.store.ClearLogisticsAssignment(ctx, order.ID); err != nil {
		return err
	}

	s.logger.Info("Logistics removed",
		zap.Int64("order_id", order.ID),
		zap.Int64("shipment_id", shipmentID),
		zap.Int64("logistics_user_id", removedUserID))

	order.AssignedLogisticsID = nil
	s.dispatcher.LogisticsRemoved(ctx, order, shipmentID, removedUserID, actor.ID)
	return nil
}

// AssignWarehouseRegion links a logistics user to a warehouse they may serve
func (s *AssignmentService) AssignWarehouseRegion(ctx context.Context, actor models.Actor, logisticsUserID, warehouseID int64) error {
	ctx, span := util.StartSpan(ctx, "AssignmentService.AssignWarehouseRegion")
	defer span.End()

	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("role %s may not assign regions: %w", actor.Role, models.ErrAccessDenied)
	}

	user, err := s.store.GetUserByID(ctx, logisticsUserID)
	if err != nil {
		return err
	}
	if user.Role != models.RoleLogistics {
		return fmt.Errorf("user %d is not a logistics user: %w", logisticsUserID, models.ErrNotFound)
	}

	if _, err := s.store.GetWarehouseByID(ctx, warehouseID); err != nil {
		return err
	}

	if err := s.store.CreateLogisticsRegion(ctx, logisticsUserID, warehouseID); err != nil {
		return err
	}

	s.logger.Info("Warehouse region assigned",
		zap.Int64("logistics_user_id", logisticsUserID),
		zap.Int64("warehouse_id", warehouseID))
	return nil
}

// RecordDeliveryAttempt increments the shipment's failed-attempt counter.
// Only the assigned logistics actor or an admin may record one.
func (s *AssignmentService) RecordDeliveryAttempt(ctx context.Context, actor models.Actor, shipmentID int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "AssignmentService.RecordDeliveryAttempt")
	defer span.End()

	shipment, err := s.store.GetShipmentByID(ctx, shipmentID)
	if err != nil {
		return 0, err
	}

	order, err := s.store.GetOrderByID(ctx, shipment.OrderID)
	if err != nil {
		return 0, err
	}

	if actor.Role != models.RoleAdmin && !isAssignedLogistics(order, actor) {
		return 0, fmt.Errorf("actor %d is not assigned to order %d: %w",
			actor.ID, order.ID, models.ErrAccessDenied)
	}

	attempts, err := s.store.IncrementDeliveryAttempts(ctx, shipmentID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Delivery attempt recorded",
		zap.Int64("shipment_id", shipmentID),
		zap.Int64("order_id", order.ID),
		zap.Int("attempts", attempts))

	s.dispatcher.DeliveryAttempt(ctx, order, shipmentID, attempts, actor.ID)
	return attempts, nil
}
