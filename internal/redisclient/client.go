package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/decrement_stock.lua
var decrementStockScript string

// Client is a best-effort read mirror of the stock ledger. The database is
// always authoritative; every method here may fail without affecting
// correctness, callers fall back to the store.
type Client struct {
	rdb             *redis.Client
	decrementScript *redis.Script
	ttl             time.Duration
}

// NewClient creates a new Redis client with the mirror script loaded
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		decrementScript: redis.NewScript(decrementStockScript),
		ttl:             ttl,
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func allocationKey(productID, warehouseID int64) string {
	return fmt.Sprintf("stock:%d:%d", warehouseID, productID)
}

func warehouseSummaryKey(warehouseID int64) string {
	return fmt.Sprintf("warehouse:%d:summary", warehouseID)
}

// GetAllocation reads the cached allocation. ok is false on a miss.
func (c *Client) GetAllocation(ctx context.Context, productID, warehouseID int64) (allocated, safetyStock int, ok bool, err error) {
	result, err := c.rdb.HGetAll(ctx, allocationKey(productID, warehouseID)).Result()
	if err != nil {
		return 0, 0, false, err
	}
	if len(result) == 0 {
		return 0, 0, false, nil
	}

	allocated, err = strconv.Atoi(result["allocated"])
	if err != nil {
		return 0, 0, false, fmt.Errorf("corrupt allocation cache: %w", err)
	}
	safetyStock, err = strconv.Atoi(result["safety"])
	if err != nil {
		return 0, 0, false, fmt.Errorf("corrupt allocation cache: %w", err)
	}
	return allocated, safetyStock, true, nil
}

// SetAllocation populates the cached allocation with a TTL
func (c *Client) SetAllocation(ctx context.Context, productID, warehouseID int64, allocated, safetyStock int) error {
	key := allocationKey(productID, warehouseID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "allocated", allocated)
	pipe.HSet(ctx, key, "safety", safetyStock)
	pipe.Expire(ctx, key, c.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// DecrementAllocation mirrors a committed ledger decrement into the cache.
// Missing keys are left missing; a drifted-negative mirror is dropped by the
// script so the next read repopulates from the database.
func (c *Client) DecrementAllocation(ctx context.Context, productID, warehouseID int64, qty int) error {
	key := allocationKey(productID, warehouseID)

	_, err := c.decrementScript.Run(ctx, c.rdb, []string{key}, qty).Result()
	if err != nil {
		return fmt.Errorf("decrement mirror script failed: %w", err)
	}
	return nil
}

// InvalidateAllocation drops the cached allocation
func (c *Client) InvalidateAllocation(ctx context.Context, productID, warehouseID int64) error {
	return c.rdb.Del(ctx, allocationKey(productID, warehouseID)).Err()
}

// GetWarehouseSummary reads the cached warehouse aggregate. ok is false on a miss.
func (c *Client) GetWarehouseSummary(ctx context.Context, warehouseID int64) (totalAllocated, lowStockCount int, ok bool, err error) {
	result, err := c.rdb.HGetAll(ctx, warehouseSummaryKey(warehouseID)).Result()
	if err != nil {
		return 0, 0, false, err
	}
	if len(result) == 0 {
		return 0, 0, false, nil
	}

	totalAllocated, err = strconv.Atoi(result["total"])
	if err != nil {
		return 0, 0, false, fmt.Errorf("corrupt warehouse cache: %w", err)
	}
	lowStockCount, err = strconv.Atoi(result["low"])
	if err != nil {
		return 0, 0, false, fmt.Errorf("corrupt warehouse cache: %w", err)
	}
	return totalAllocated, lowStockCount, true, nil
}

// SetWarehouseSummary caches the warehouse aggregate with a TTL
func (c *Client) SetWarehouseSummary(ctx context.Context, warehouseID int64, totalAllocated, lowStockCount int) error {
	key := warehouseSummaryKey(warehouseID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "total", totalAllocated)
	pipe.HSet(ctx, key, "low", lowStockCount)
	pipe.Expire(ctx, key, c.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateWarehouseSummary drops the cached warehouse aggregate
func (c *Client) InvalidateWarehouseSummary(ctx context.Context, warehouseID int64) error {
	return c.rdb.Del(ctx, warehouseSummaryKey(warehouseID)).Err()
}
