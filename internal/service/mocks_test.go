package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
)

// mockStore is an in-memory stand-in for *store.Store. Mutations take the
// same guards as the SQL (CAS on status, decrement floor, unique shipment
// per order), so concurrency tests exercise the same semantics.
type mockStore struct {
	mu          sync.Mutex
	orders      map[int64]*models.Order
	items       map[int64][]models.OrderItem
	users       map[int64]*models.User
	warehouses  map[int64]*models.Warehouse
	shipments   map[int64]*models.Shipment
	shipmentSeq int64
	regions     map[string]bool
	allocations map[string]*models.StockAllocation
	readMarked  []int64
}

var (
	_ OrderStore      = (*mockStore)(nil)
	_ AssignmentStore = (*mockStore)(nil)
	_ LedgerStore     = (*mockStore)(nil)
	_ LedgerCache     = (*mockCache)(nil)
	_ Dispatcher      = (*mockDispatcher)(nil)
)

func newMockStore() *mockStore {
	return &mockStore{
		orders:      make(map[int64]*models.Order),
		items:       make(map[int64][]models.OrderItem),
		users:       make(map[int64]*models.User),
		warehouses:  make(map[int64]*models.Warehouse),
		shipments:   make(map[int64]*models.Shipment),
		regions:     make(map[string]bool),
		allocations: make(map[string]*models.StockAllocation),
	}
}

func allocKey(productID, warehouseID int64) string {
	return fmt.Sprintf("%d-%d", warehouseID, productID)
}

func (m *mockStore) addOrder(o models.Order) {
	m.orders[o.ID] = &o
}

func (m *mockStore) addAllocation(productID, warehouseID int64, allocated, safety int) {
	m.allocations[allocKey(productID, warehouseID)] = &models.StockAllocation{
		ProductID:         productID,
		WarehouseID:       warehouseID,
		AllocatedQuantity: allocated,
		SafetyStock:       safety,
	}
}

func (m *mockStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) ListOrders(_ context.Context, scope models.OrderScope, f store.OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Order
	for _, o := range m.orders {
		if !scope.Allows(o) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out, nil
}

func (m *mockStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.items[orderID]...), nil
}

func (m *mockStore) UpdateOrderStatusCAS(_ context.Context, orderID int64, from, to string, heldFrom *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return fmt.Errorf("order %d not in status %s: %w", orderID, from, models.ErrConflict)
	}
	o.Status = to
	o.HeldFromStatus = heldFrom
	for _, sh := range m.shipments {
		if sh.OrderID == orderID {
			sh.LastStatusUpdate = time.Now()
		}
	}
	return nil
}

func (m *mockStore) GetShipmentByOrderID(_ context.Context, orderID int64) (*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sh := range m.shipments {
		if sh.OrderID == orderID {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("shipment for order %d: %w", orderID, models.ErrNotFound)
}

func (m *mockStore) AllocateOrderTx(_ context.Context, orderID, warehouseID int64, items []models.OrderItem) ([]models.StockAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate before mutating anything, mirroring the transactional rollback.
	for _, item := range items {
		alloc, ok := m.allocations[allocKey(item.ProductID, warehouseID)]
		if !ok {
			return nil, fmt.Errorf("allocation for product %d at warehouse %d: %w",
				item.ProductID, warehouseID, models.ErrNotFound)
		}
		if alloc.AllocatedQuantity < item.Quantity {
			return nil, fmt.Errorf("product %d at warehouse %d: %w",
				item.ProductID, warehouseID, models.ErrInsufficientStock)
		}
	}

	o, ok := m.orders[orderID]
	if !ok || o.Status != models.StatusNew {
		return nil, fmt.Errorf("order %d not in status %s: %w", orderID, models.StatusNew, models.ErrConflict)
	}

	out := make([]models.StockAllocation, 0, len(items))
	for _, item := range items {
		alloc := m.allocations[allocKey(item.ProductID, warehouseID)]
		alloc.AllocatedQuantity -= item.Quantity
		out = append(out, *alloc)
	}
	o.Status = models.StatusAwaitingAlloc
	o.FulfillmentWarehouseID = &warehouseID
	return out, nil
}

func (m *mockStore) MarkNotificationRead(_ context.Context, id, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readMarked = append(m.readMarked, id)
	return nil
}

func (m *mockStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *mockStore) GetWarehouseByID(_ context.Context, id int64) (*models.Warehouse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.warehouses[id]
	if !ok {
		return nil, fmt.Errorf("warehouse %d: %w", id, models.ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

func (m *mockStore) GetShipmentByID(_ context.Context, id int64) (*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sh, ok := m.shipments[id]
	if !ok {
		return nil, fmt.Errorf("shipment %d: %w", id, models.ErrNotFound)
	}
	cp := *sh
	return &cp, nil
}

func (m *mockStore) AssignLogisticsTx(_ context.Context, orderID int64, fromStatus string, logisticsUserID int64, trackingNumber, carrierName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.Status != fromStatus {
		return fmt.Errorf("order %d not in status %s: %w", orderID, fromStatus, models.ErrConflict)
	}
	o.Status = models.StatusPickedUp
	o.AssignedLogisticsID = &logisticsUserID

	for _, sh := range m.shipments {
		if sh.OrderID == orderID {
			return nil // idempotent: existing shipment only gets touched
		}
	}
	m.shipmentSeq++
	m.shipments[m.shipmentSeq] = &models.Shipment{
		ID:             m.shipmentSeq,
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		CarrierName:    carrierName,
	}
	return nil
}

func (m *mockStore) ClearLogisticsAssignment(_ context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.orders[orderID]; ok {
		o.AssignedLogisticsID = nil
	}
	return nil
}

func (m *mockStore) CreateLogisticsRegion(_ context.Context, logisticsUserID, warehouseID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%d-%d", logisticsUserID, warehouseID)
	if m.regions[key] {
		return fmt.Errorf("logistics user %d already assigned to warehouse %d: %w",
			logisticsUserID, warehouseID, models.ErrConflict)
	}
	m.regions[key] = true
	return nil
}

func (m *mockStore) IncrementDeliveryAttempts(_ context.Context, shipmentID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sh, ok := m.shipments[shipmentID]
	if !ok {
		return 0, fmt.Errorf("shipment %d: %w", shipmentID, models.ErrNotFound)
	}
	sh.DeliveryAttempts++
	return sh.DeliveryAttempts, nil
}

func (m *mockStore) GetStockAllocation(_ context.Context, productID, warehouseID int64) (*models.StockAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, ok := m.allocations[allocKey(productID, warehouseID)]
	if !ok {
		return nil, fmt.Errorf("allocation for product %d at warehouse %d: %w",
			productID, warehouseID, models.ErrNotFound)
	}
	cp := *alloc
	return &cp, nil
}

func (m *mockStore) DecrementStock(_ context.Context, productID, warehouseID int64, qty int) (*models.StockAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alloc, ok := m.allocations[allocKey(productID, warehouseID)]
	if !ok {
		return nil, fmt.Errorf("allocation for product %d at warehouse %d: %w",
			productID, warehouseID, models.ErrNotFound)
	}
	if alloc.AllocatedQuantity < qty {
		return nil, fmt.Errorf("product %d at warehouse %d: %w",
			productID, warehouseID, models.ErrInsufficientStock)
	}
	alloc.AllocatedQuantity -= qty
	cp := *alloc
	return &cp, nil
}

func (m *mockStore) WarehouseStockSummary(_ context.Context, warehouseID int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total, low := 0, 0
	for _, alloc := range m.allocations {
		if alloc.WarehouseID != warehouseID {
			continue
		}
		total += alloc.AllocatedQuantity
		if alloc.AllocatedQuantity <= alloc.SafetyStock {
			low++
		}
	}
	return total, low, nil
}

func (m *mockStore) ListLowStock(_ context.Context, warehouseID int64) ([]models.StockAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.StockAllocation
	for _, alloc := range m.allocations {
		if alloc.WarehouseID == warehouseID && alloc.AllocatedQuantity <= alloc.SafetyStock {
			out = append(out, *alloc)
		}
	}
	return out, nil
}

// mockDispatcher records dispatched event types
type mockDispatcher struct {
	mu     sync.Mutex
	events []string
}

func (d *mockDispatcher) push(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, name)
}

func (d *mockDispatcher) count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e == name {
			n++
		}
	}
	return n
}

func (d *mockDispatcher) OrderStatusChanged(_ context.Context, _ *models.Order, _, _ string, _ int64) {
	d.push(models.EventTypeOrderStatusChanged)
}

func (d *mockDispatcher) LogisticsAssigned(_ context.Context, _ *models.Order, _ int64, _ string, _ int64) {
	d.push(models.EventTypeLogisticsAssigned)
}

func (d *mockDispatcher) LogisticsRemoved(_ context.Context, _ *models.Order, _, _, _ int64) {
	d.push(models.EventTypeLogisticsRemoved)
}

func (d *mockDispatcher) DeliveryAttempt(_ context.Context, _ *models.Order, _ int64, _ int, _ int64) {
	d.push(models.EventTypeDeliveryAttempt)
}

func (d *mockDispatcher) StockLow(_ context.Context, _ *models.StockAllocation) {
	d.push(models.EventTypeStockLow)
}

// mockCache is an in-memory LedgerCache
type mockCache struct {
	mu      sync.Mutex
	allocs  map[string][2]int
	summary map[int64][2]int
	failing bool
}

func newMockCache() *mockCache {
	return &mockCache{
		allocs:  make(map[string][2]int),
		summary: make(map[int64][2]int),
	}
}

var errCacheDown = fmt.Errorf("cache down")

func (c *mockCache) GetAllocation(_ context.Context, productID, warehouseID int64) (int, int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, 0, false, errCacheDown
	}
	v, ok := c.allocs[allocKey(productID, warehouseID)]
	return v[0], v[1], ok, nil
}

func (c *mockCache) SetAllocation(_ context.Context, productID, warehouseID int64, allocated, safety int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errCacheDown
	}
	c.allocs[allocKey(productID, warehouseID)] = [2]int{allocated, safety}
	return nil
}

func (c *mockCache) DecrementAllocation(_ context.Context, productID, warehouseID int64, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errCacheDown
	}
	key := allocKey(productID, warehouseID)
	if v, ok := c.allocs[key]; ok {
		v[0] -= qty
		c.allocs[key] = v
	}
	return nil
}

func (c *mockCache) InvalidateAllocation(_ context.Context, productID, warehouseID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.allocs, allocKey(productID, warehouseID))
	return nil
}

func (c *mockCache) GetWarehouseSummary(_ context.Context, warehouseID int64) (int, int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, 0, false, errCacheDown
	}
	v, ok := c.summary[warehouseID]
	return v[0], v[1], ok, nil
}

func (c *mockCache) SetWarehouseSummary(_ context.Context, warehouseID int64, total, low int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errCacheDown
	}
	c.summary[warehouseID] = [2]int{total, low}
	return nil
}

func (c *mockCache) InvalidateWarehouseSummary(_ context.Context, warehouseID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.summary, warehouseID)
	return nil
}
