package models

import "time"

// Actor roles
const (
	RoleAdmin     = "ADMIN"
	RoleMerchant  = "MERCHANT"
	RoleStaff     = "STAFF"
	RoleLogistics = "LOGISTICS"
)

// Actor is the identity context resolved upstream. The engine trusts it and
// performs no credential verification of its own.
type Actor struct {
	ID         int64  `json:"id"`
	Role       string `json:"role"`
	BusinessID int64  `json:"business_id,omitempty"`
}

// User represents a platform account (merchant owner, staff, logistics)
type User struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Role       string    `db:"role" json:"role"`
	BusinessID *int64    `db:"business_id" json:"business_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Product belongs to exactly one merchant; SKU is unique per merchant
type Product struct {
	ID         int64     `db:"id" json:"id"`
	MerchantID int64     `db:"merchant_id" json:"merchant_id"`
	SKU        string    `db:"sku" json:"sku"`
	Name       string    `db:"name" json:"name"`
	Price      int64     `db:"price" json:"price"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Warehouse is a region-scoped facility. CurrentStock is a best-effort cache,
// the authoritative value is the sum of its stock allocation rows.
type Warehouse struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Region       string    `db:"region" json:"region"`
	Capacity     int       `db:"capacity" json:"capacity"`
	CurrentStock int       `db:"current_stock" json:"current_stock"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StockAllocation is per-warehouse, per-product committed stock.
// AllocatedQuantity never goes below zero; SafetyStock is the floor below
// which the item counts as operationally low.
type StockAllocation struct {
	ProductID         int64     `db:"product_id" json:"product_id"`
	WarehouseID       int64     `db:"warehouse_id" json:"warehouse_id"`
	AllocatedQuantity int       `db:"allocated_quantity" json:"allocated_quantity"`
	SafetyStock       int       `db:"safety_stock" json:"safety_stock"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Order represents a merchant-placed order
type Order struct {
	ID                     int64     `db:"id" json:"id"`
	MerchantID             int64     `db:"merchant_id" json:"merchant_id"`
	CustomerName           string    `db:"customer_name" json:"customer_name"`
	CustomerPhone          string    `db:"customer_phone" json:"customer_phone"`
	CustomerAddress        string    `db:"customer_address" json:"customer_address"`
	TotalAmount            int64     `db:"total_amount" json:"total_amount"`
	Status                 string    `db:"status" json:"status"`
	AssignedLogisticsID    *int64    `db:"assigned_logistics_id" json:"assigned_logistics_id,omitempty"`
	FulfillmentWarehouseID *int64    `db:"fulfillment_warehouse_id" json:"fulfillment_warehouse_id,omitempty"`
	HeldFromStatus         *string   `db:"held_from_status" json:"held_from_status,omitempty"`
	OrderDate              time.Time `db:"order_date" json:"order_date"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem belongs to exactly one order; price is captured at order time
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Shipment is the delivery tracking record, one-to-one with an order.
// Created lazily the first time logistics is assigned; order_id is unique.
type Shipment struct {
	ID               int64     `db:"id" json:"id"`
	OrderID          int64     `db:"order_id" json:"order_id"`
	TrackingNumber   string    `db:"tracking_number" json:"tracking_number"`
	CarrierName      string    `db:"carrier_name" json:"carrier_name"`
	DeliveryAttempts int       `db:"delivery_attempts" json:"delivery_attempts"`
	LastStatusUpdate time.Time `db:"last_status_update" json:"last_status_update"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// LogisticsRegion links a logistics user to a warehouse they may serve
type LogisticsRegion struct {
	LogisticsUserID int64     `db:"logistics_user_id" json:"logistics_user_id"`
	WarehouseID     int64     `db:"warehouse_id" json:"warehouse_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Notification is append-only except for the read flag
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Message   string    `db:"message" json:"message"`
	Link      string    `db:"link" json:"link"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditLog is an immutable trail entry referenced by entity type and id
type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	ActorID    int64     `db:"actor_id" json:"actor_id"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   int64     `db:"entity_id" json:"entity_id"`
	Action     string    `db:"action" json:"action"`
	Details    string    `db:"details" json:"details"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Order statuses. The value set is fixed and closed.
const (
	StatusNew           = "NEW"
	StatusAwaitingAlloc = "AWAITING_ALLOC"
	StatusDispatched    = "DISPATCHED"
	StatusPickedUp      = "PICKED_UP"
	StatusDelivering    = "DELIVERING"
	StatusDelivered     = "DELIVERED"
	StatusReturned      = "RETURNED"
	StatusCanceled      = "CANCELED"
	StatusOnHold        = "ON_HOLD"
)

// OrderScope is the tenant-isolation boundary applied to every order read and
// write. Exactly one of the fields is set per actor role.
type OrderScope struct {
	All         bool
	MerchantID  *int64
	LogisticsID *int64
}

// Allows reports whether an order is visible under this scope.
func (s OrderScope) Allows(o *Order) bool {
	switch {
	case s.All:
		return true
	case s.MerchantID != nil:
		return o.MerchantID == *s.MerchantID
	case s.LogisticsID != nil:
		return o.AssignedLogisticsID != nil && *o.AssignedLogisticsID == *s.LogisticsID
	}
	return false
}
