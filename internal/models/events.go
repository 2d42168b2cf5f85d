package models

import "time"

// Event types
const (
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeLogisticsAssigned  = "LOGISTICS_ASSIGNED"
	EventTypeLogisticsRemoved   = "LOGISTICS_REMOVED"
	EventTypeDeliveryAttempt    = "DELIVERY_ATTEMPT"
	EventTypeStockLow           = "STOCK_LOW"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStatusChangedEvent published on every accepted transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	MerchantID int64  `json:"merchant_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	ActorID    int64  `json:"actor_id"`
}

// LogisticsAssignedEvent published when a logistics actor is bound to an order
type LogisticsAssignedEvent struct {
	BaseEvent
	OrderID         int64  `json:"order_id"`
	MerchantID      int64  `json:"merchant_id"`
	LogisticsUserID int64  `json:"logistics_user_id"`
	TrackingNumber  string `json:"tracking_number"`
	ActorID         int64  `json:"actor_id"`
}

// LogisticsRemovedEvent published when an assignment is cleared
type LogisticsRemovedEvent struct {
	BaseEvent
	OrderID         int64 `json:"order_id"`
	ShipmentID      int64 `json:"shipment_id"`
	LogisticsUserID int64 `json:"logistics_user_id"`
	ActorID         int64 `json:"actor_id"`
}

// DeliveryAttemptEvent published when a failed delivery attempt is recorded
type DeliveryAttemptEvent struct {
	BaseEvent
	OrderID    int64 `json:"order_id"`
	ShipmentID int64 `json:"shipment_id"`
	MerchantID int64 `json:"merchant_id"`
	Attempts   int   `json:"attempts"`
	ActorID    int64 `json:"actor_id"`
}

// StockLowEvent published when a decrement lands at or below safety stock
type StockLowEvent struct {
	BaseEvent
	ProductID   int64 `json:"product_id"`
	WarehouseID int64 `json:"warehouse_id"`
	Remaining   int   `json:"remaining"`
	SafetyStock int   `json:"safety_stock"`
}
