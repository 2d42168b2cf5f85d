package service

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// LedgerStore is the authoritative persistence surface of the stock ledger
type LedgerStore interface {
	GetStockAllocation(ctx context.Context, productID, warehouseID int64) (*models.StockAllocation, error)
	DecrementStock(ctx context.Context, productID, warehouseID int64, qty int) (*models.StockAllocation, error)
	WarehouseStockSummary(ctx context.Context, warehouseID int64) (totalAllocated, lowStockCount int, err error)
	ListLowStock(ctx context.Context, warehouseID int64) ([]models.StockAllocation, error)
	GetWarehouseByID(ctx context.Context, id int64) (*models.Warehouse, error)
}

// LedgerCache is the best-effort read mirror of the ledger
type LedgerCache interface {
	GetAllocation(ctx context.Context, productID, warehouseID int64) (allocated, safetyStock int, ok bool, err error)
	SetAllocation(ctx context.Context, productID, warehouseID int64, allocated, safetyStock int) error
	DecrementAllocation(ctx context.Context, productID, warehouseID int64, qty int) error
	InvalidateAllocation(ctx context.Context, productID, warehouseID int64) error
	GetWarehouseSummary(ctx context.Context, warehouseID int64) (totalAllocated, lowStockCount int, ok bool, err error)
	SetWarehouseSummary(ctx context.Context, warehouseID int64, totalAllocated, lowStockCount int) error
	InvalidateWarehouseSummary(ctx context.Context, warehouseID int64) error
}

// Availability answers "how much of product P is available at warehouse W".
// Available may be negative: an over-committed SKU. Callers treat that as
// cannot-fulfill, not as an error.
type Availability struct {
	ProductID   int64 `json:"product_id"`
	WarehouseID int64 `json:"warehouse_id"`
	Allocated   int   `json:"allocated"`
	SafetyStock int   `json:"safety_stock"`
	Available   int   `json:"available"`
}

// WarehouseSnapshot is a consistent aggregate view of a warehouse's stock
type WarehouseSnapshot struct {
	WarehouseID    int64 `json:"warehouse_id"`
	TotalAllocated int   `json:"total_allocated"`
	LowStockCount  int   `json:"low_stock_count"`
}

// StockLedger answers availability queries and applies pick decrements
type StockLedger struct {
	store      LedgerStore
	cache      LedgerCache
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewStockLedger creates a new stock ledger service
func NewStockLedger(st LedgerStore, cache LedgerCache, dispatcher Dispatcher) *StockLedger {
	return &StockLedger{
		store:      st,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// GetAvailable returns allocated, safety stock and their difference for a
// (product, warehouse) pair. Served from the cache mirror when warm, from
// the database otherwise.
func (l *StockLedger) GetAvailable(ctx context.Context, productID, warehouseID int64) (*Availability, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.GetAvailable")
	defer span.End()

	allocated, safety, ok, err := l.cache.GetAllocation(ctx, productID, warehouseID)
	if err != nil {
		l.logger.Warn("Allocation cache read failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Int64("warehouse_id", warehouseID),
			zap.Error(err))
	}
	if err == nil && ok {
		return &Availability{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Allocated:   allocated,
			SafetyStock: safety,
			Available:   allocated - safety,
		}, nil
	}

	alloc, err := l.store.GetStockAllocation(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}

	if err := l.cache.SetAllocation(ctx, productID, warehouseID, alloc.AllocatedQuantity, alloc.SafetyStock); err != nil {
		l.logger.Warn("Failed to warm allocation cache",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}

	return &Availability{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Allocated:   alloc.AllocatedQuantity,
		SafetyStock: alloc.SafetyStock,
		Available:   alloc.AllocatedQuantity - alloc.SafetyStock,
	}, nil
}

// Decrement applies one pick event against the ledger. The database guard is
// the only serialization point; the cache mirror and the warehouse summary
// are refreshed best-effort afterwards.
func (l *StockLedger) Decrement(ctx context.Context, productID, warehouseID int64, qty int) (*models.StockAllocation, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Decrement")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockDecrementLatency.Observe(time.Since(start).Seconds())
	}()

	alloc, err := l.store.DecrementStock(ctx, productID, warehouseID, qty)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientStock):
			util.StockDecrementsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, models.ErrNotFound):
			util.StockDecrementsFailedTotal.WithLabelValues("not_found").Inc()
		default:
			util.StockDecrementsFailedTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	util.StockDecrementsTotal.Inc()

	go func() {
		mirrorCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.cache.DecrementAllocation(mirrorCtx, productID, warehouseID, qty); err != nil {
			l.logger.Error("Failed to mirror decrement to cache",
				zap.Int64("product_id", productID),
				zap.Error(err))
			// Drop the stale mirror so the next read repopulates from the DB.
			if err := l.cache.InvalidateAllocation(mirrorCtx, productID, warehouseID); err != nil {
				l.logger.Error("Failed to invalidate allocation cache",
					zap.Int64("product_id", productID),
					zap.Error(err))
			}
		}
		if err := l.cache.InvalidateWarehouseSummary(mirrorCtx, warehouseID); err != nil {
			l.logger.Error("Failed to invalidate warehouse summary",
				zap.Int64("warehouse_id", warehouseID),
				zap.Error(err))
		}
	}()

	if alloc.AllocatedQuantity <= alloc.SafetyStock {
		l.dispatcher.StockLow(ctx, alloc)
	}

	return alloc, nil
}

// Snapshot returns warehouse-level totals from a single consistent read
func (l *StockLedger) Snapshot(ctx context.Context, warehouseID int64) (*WarehouseSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Snapshot")
	defer span.End()

	if _, err := l.store.GetWarehouseByID(ctx, warehouseID); err != nil {
		return nil, err
	}

	total, low, ok, err := l.cache.GetWarehouseSummary(ctx, warehouseID)
	if err == nil && ok {
		return &WarehouseSnapshot{WarehouseID: warehouseID, TotalAllocated: total, LowStockCount: low}, nil
	}
	if err != nil {
		l.logger.Warn("Warehouse summary cache read failed",
			zap.Int64("warehouse_id", warehouseID),
			zap.Error(err))
	}

	total, low, err = l.store.WarehouseStockSummary(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	if err := l.cache.SetWarehouseSummary(ctx, warehouseID, total, low); err != nil {
		l.logger.Warn("Failed to cache warehouse summary",
			zap.Int64("warehouse_id", warehouseID),
			zap.Error(err))
	}

	return &WarehouseSnapshot{WarehouseID: warehouseID, TotalAllocated: total, LowStockCount: low}, nil
}

// LowStock lists the allocations at or below their safety floor
func (l *StockLedger) LowStock(ctx context.Context, warehouseID int64) ([]models.StockAllocation, error) {
	if _, err := l.store.GetWarehouseByID(ctx, warehouseID); err != nil {
		return nil, err
	}
	return l.store.ListLowStock(ctx, warehouseID)
}
