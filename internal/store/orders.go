package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
)

// OrderFilter narrows ListOrders results. Zero values mean no filtering.
type OrderFilter struct {
	Status   string
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Limit    int
	Offset   int
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves orders visible under the given scope, newest first
func (s *Store) ListOrders(ctx context.Context, scope models.OrderScope, f OrderFilter) ([]models.Order, error) {
	query := "SELECT * FROM orders"
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case scope.All:
	case scope.MerchantID != nil:
		conds = append(conds, "merchant_id = "+arg(*scope.MerchantID))
	case scope.LogisticsID != nil:
		conds = append(conds, "assigned_logistics_id = "+arg(*scope.LogisticsID))
	default:
		return []models.Order{}, nil
	}

	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.DateFrom != nil {
		conds = append(conds, "order_date >= "+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		conds = append(conds, "order_date <= "+arg(*f.DateTo))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(customer_name ILIKE %s OR customer_phone ILIKE %s)", p, p))
	}

	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY order_date DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// UpdateOrderStatusCAS moves an order from one status to another with a
// compare-and-set guard. A concurrent transition that already changed the
// status makes this a no-op and the caller gets ErrConflict. heldFrom is the
// value written to held_from_status (nil clears it). The shipment's
// last_status_update rides in the same transaction; orders without a
// shipment yet are a no-op there.
func (s *Store) UpdateOrderStatusCAS(ctx context.Context, orderID int64, from, to string, heldFrom *string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, held_from_status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		to, heldFrom, orderID, from)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("order %d not in status %s: %w", orderID, from, models.ErrConflict)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE shipments SET last_status_update = NOW() WHERE order_id = $1",
		orderID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// AllocateOrderTx decrements stock for every line item and moves the order
// NEW -> AWAITING_ALLOC as one atomic unit. Any failed decrement rolls back
// the whole call. Returns the post-decrement allocation rows so the caller
// can raise low-stock alerts.
func (s *Store) AllocateOrderTx(ctx context.Context, orderID, warehouseID int64, items []models.OrderItem) ([]models.StockAllocation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	allocs := make([]models.StockAllocation, 0, len(items))
	for _, item := range items {
		var alloc models.StockAllocation
		err := tx.GetContext(ctx, &alloc, `
			UPDATE stock_allocations
			SET allocated_quantity = allocated_quantity - $3, updated_at = NOW()
			WHERE product_id = $1 AND warehouse_id = $2 AND allocated_quantity >= $3
			RETURNING product_id, warehouse_id, allocated_quantity, safety_stock, updated_at`,
			item.ProductID, warehouseID, item.Quantity)
		if err == sql.ErrNoRows {
			var exists bool
			if err2 := tx.GetContext(ctx, &exists,
				"SELECT EXISTS(SELECT 1 FROM stock_allocations WHERE product_id = $1 AND warehouse_id = $2)",
				item.ProductID, warehouseID); err2 != nil {
				return nil, err2
			}
			if !exists {
				return nil, fmt.Errorf("allocation for product %d at warehouse %d: %w",
					item.ProductID, warehouseID, models.ErrNotFound)
			}
			return nil, fmt.Errorf("product %d at warehouse %d: %w",
				item.ProductID, warehouseID, models.ErrInsufficientStock)
		}
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, alloc)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, fulfillment_warehouse_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.StatusAwaitingAlloc, warehouseID, orderID, models.StatusNew)
	if err != nil {
		return nil, err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return nil, fmt.Errorf("order %d not in status %s: %w", orderID, models.StatusNew, models.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return allocs, nil
}

// AssignLogisticsTx binds a logistics user to an order and lazily creates its
// shipment as one atomic unit. The unique index on shipments.order_id plus
// the ON CONFLICT clause make shipment creation idempotent; a second
// assignment only touches last_status_update.
func (s *Store) AssignLogisticsTx(ctx context.Context, orderID int64, fromStatus string, logisticsUserID int64, trackingNumber, carrierName string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, assigned_logistics_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.StatusPickedUp, logisticsUserID, orderID, fromStatus)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("order %d not in status %s: %w", orderID, fromStatus, models.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shipments (order_id, tracking_number, carrier_name, delivery_attempts, last_status_update)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (order_id) DO UPDATE SET last_status_update = NOW()`,
		orderID, trackingNumber, carrierName)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ClearLogisticsAssignment removes the logistics binding from an order.
// Order status is deliberately left unchanged.
func (s *Store) ClearLogisticsAssignment(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET assigned_logistics_id = NULL, updated_at = NOW() WHERE id = $1",
		orderID)
	return err
}

// GetShipmentByID retrieves a shipment by ID
func (s *Store) GetShipmentByID(ctx context.Context, id int64) (*models.Shipment, error) {
	var sh models.Shipment
	err := s.db.GetContext(ctx, &sh, "SELECT * FROM shipments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// GetShipmentByOrderID retrieves the shipment paired with an order
func (s *Store) GetShipmentByOrderID(ctx context.Context, orderID int64) (*models.Shipment, error) {
	var sh models.Shipment
	err := s.db.GetContext(ctx, &sh, "SELECT * FROM shipments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipment for order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// IncrementDeliveryAttempts records a failed delivery attempt
func (s *Store) IncrementDeliveryAttempts(ctx context.Context, shipmentID int64) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		UPDATE shipments
		SET delivery_attempts = delivery_attempts + 1, last_status_update = NOW()
		WHERE id = $1
		RETURNING delivery_attempts`,
		shipmentID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("shipment %d: %w", shipmentID, models.ErrNotFound)
	}
	return attempts, err
}

// CreateLogisticsRegion links a logistics user to a warehouse. The pair is
// unique; a duplicate returns ErrConflict.
func (s *Store) CreateLogisticsRegion(ctx context.Context, logisticsUserID, warehouseID int64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO logistics_regions (logistics_user_id, warehouse_id)
		VALUES ($1, $2)
		ON CONFLICT (logistics_user_id, warehouse_id) DO NOTHING`,
		logisticsUserID, warehouseID)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("logistics user %d already assigned to warehouse %d: %w",
			logisticsUserID, warehouseID, models.ErrConflict)
	}
	return nil
}

// CreateNotification appends a notification row
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, message, link, read)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, n, query, n.UserID, n.Message, n.Link)
}

// MarkNotificationRead flips the read flag, the only mutation a notification allows
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2",
		id, userID)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// CreateAuditLog appends an immutable audit trail entry
func (s *Store) CreateAuditLog(ctx context.Context, a *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (actor_id, entity_type, entity_id, action, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, a, query,
		a.ActorID, a.EntityType, a.EntityID, a.Action, a.Details)
}
