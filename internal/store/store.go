package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetWarehouseByID retrieves a warehouse by ID
func (s *Store) GetWarehouseByID(ctx context.Context, id int64) (*models.Warehouse, error) {
	var wh models.Warehouse
	err := s.db.GetContext(ctx, &wh, "SELECT * FROM warehouses WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("warehouse %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

// GetStockAllocation retrieves the allocation row for a (product, warehouse) pair
func (s *Store) GetStockAllocation(ctx context.Context, productID, warehouseID int64) (*models.StockAllocation, error) {
	var alloc models.StockAllocation
	err := s.db.GetContext(ctx, &alloc,
		"SELECT * FROM stock_allocations WHERE product_id = $1 AND warehouse_id = $2",
		productID, warehouseID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("allocation for product %d at warehouse %d: %w",
			productID, warehouseID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

// DecrementStock atomically reduces allocated quantity by qty. The guard is in
// the UPDATE itself so concurrent decrements against the same row serialize;
// a decrement that would go below zero fails without writing.
func (s *Store) DecrementStock(ctx context.Context, productID, warehouseID int64, qty int) (*models.StockAllocation, error) {
	var alloc models.StockAllocation
	err := s.db.GetContext(ctx, &alloc, `
		UPDATE stock_allocations
		SET allocated_quantity = allocated_quantity - $3, updated_at = NOW()
		WHERE product_id = $1 AND warehouse_id = $2 AND allocated_quantity >= $3
		RETURNING product_id, warehouse_id, allocated_quantity, safety_stock, updated_at`,
		productID, warehouseID, qty)
	if err == sql.ErrNoRows {
		var exists bool
		if err2 := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM stock_allocations WHERE product_id = $1 AND warehouse_id = $2)",
			productID, warehouseID); err2 != nil {
			return nil, err2
		}
		if !exists {
			return nil, fmt.Errorf("allocation for product %d at warehouse %d: %w",
				productID, warehouseID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("product %d at warehouse %d: %w",
			productID, warehouseID, models.ErrInsufficientStock)
	}
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

// WarehouseStockSummary aggregates a warehouse's allocations in a single
// statement so the totals reflect one consistent snapshot.
func (s *Store) WarehouseStockSummary(ctx context.Context, warehouseID int64) (totalAllocated, lowStockCount int, err error) {
	row := struct {
		Total int `db:"total_allocated"`
		Low   int `db:"low_stock_count"`
	}{}
	err = s.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(allocated_quantity), 0) AS total_allocated,
		       COUNT(*) FILTER (WHERE allocated_quantity <= safety_stock) AS low_stock_count
		FROM stock_allocations
		WHERE warehouse_id = $1`,
		warehouseID)
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Low, nil
}

// ListLowStock retrieves allocations at or below their safety stock
func (s *Store) ListLowStock(ctx context.Context, warehouseID int64) ([]models.StockAllocation, error) {
	var allocs []models.StockAllocation
	err := s.db.SelectContext(ctx, &allocs, `
		SELECT * FROM stock_allocations
		WHERE warehouse_id = $1 AND allocated_quantity <= safety_stock
		ORDER BY product_id`,
		warehouseID)
	return allocs, err
}
