package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService      *service.OrderService
	assignmentService *service.AssignmentService
	stockLedger       *service.StockLedger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	assignmentService *service.AssignmentService,
	stockLedger *service.StockLedger,
) *Handler {
	return &Handler{
		orderService:      orderService,
		assignmentService: assignmentService,
		stockLedger:       stockLedger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(actorMiddleware())
	{
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/allocate", h.allocateOrder)
		v1.POST("/orders/:id/status", h.updateOrderStatus)
		v1.POST("/orders/bulk-status", h.bulkSetStatus)

		v1.POST("/assignments", h.assignLogistics)
		v1.DELETE("/assignments/:shipmentId", h.removeLogistics)
		v1.POST("/regions", h.assignWarehouseRegion)

		v1.GET("/warehouses/:id/stock", h.warehouseStock)
		v1.GET("/warehouses/:id/stock/low", h.warehouseLowStock)
		v1.GET("/warehouses/:id/availability/:productId", h.productAvailability)

		v1.POST("/shipments/:id/attempts", h.recordDeliveryAttempt)
		v1.POST("/notifications/:id/read", h.markNotificationRead)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

var validRoles = map[string]bool{
	models.RoleAdmin:     true,
	models.RoleMerchant:  true,
	models.RoleStaff:     true,
	models.RoleLogistics: true,
}

// actorMiddleware reads the identity context resolved upstream. The engine
// trusts these headers; credential verification happens before requests
// reach it.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, err := strconv.ParseInt(c.GetHeader("X-Actor-Id"), 10, 64)
		if err != nil || actorID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing actor identity"})
			return
		}

		role := c.GetHeader("X-Actor-Role")
		if !validRoles[role] {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown actor role"})
			return
		}

		actor := models.Actor{ID: actorID, Role: role}
		if v := c.GetHeader("X-Actor-Business-Id"); v != "" {
			businessID, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid business ID"})
				return
			}
			actor.BusinessID = businessID
		}

		c.Set("actor", actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	return c.MustGet("actor").(models.Actor)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps the engine's failure taxonomy onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrUnknownStatus):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// listOrders handles the scoped order listing
func (h *Handler) listOrders(c *gin.Context) {
	var f store.OrderFilter
	f.Status = c.Query("status")
	f.Search = c.Query("search")

	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
			return
		}
		f.DateFrom = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
			return
		}
		f.DateTo = &t
	}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))

	orders, err := h.orderService.ListForActor(c.Request.Context(), actorFrom(c), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles the scoped order detail view
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.orderService.GetDetailForActor(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// allocateOrder confirms stock and moves the order to AWAITING_ALLOC
func (h *Handler) allocateOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		WarehouseID int64 `json:"warehouse_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.Allocate(c.Request.Context(), actorFrom(c), orderID, req.WarehouseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// updateOrderStatus applies a single status transition
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), actorFrom(c), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// bulkSetStatus applies a transition to many orders, skipping failures
func (h *Handler) bulkSetStatus(c *gin.Context) {
	var req struct {
		OrderIDs []int64 `json:"order_ids" binding:"required,min=1"`
		Status   string  `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	updated, err := h.orderService.BulkSetStatus(c.Request.Context(), actorFrom(c), req.OrderIDs, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// assignLogistics binds a logistics user to an order
func (h *Handler) assignLogistics(c *gin.Context) {
	var req struct {
		OrderID         int64 `json:"order_id" binding:"required"`
		LogisticsUserID int64 `json:"logistics_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.assignmentService.AssignLogistics(c.Request.Context(), actorFrom(c), req.OrderID, req.LogisticsUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// removeLogistics clears the assignment behind a shipment
func (h *Handler) removeLogistics(c *gin.Context) {
	shipmentID, ok := pathID(c, "shipmentId")
	if !ok {
		return
	}

	if err := h.assignmentService.RemoveLogistics(c.Request.Context(), actorFrom(c), shipmentID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// assignWarehouseRegion links a logistics user to a warehouse
func (h *Handler) assignWarehouseRegion(c *gin.Context) {
	var req struct {
		LogisticsUserID int64 `json:"logistics_user_id" binding:"required"`
		WarehouseID     int64 `json:"warehouse_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.assignmentService.AssignWarehouseRegion(c.Request.Context(), actorFrom(c), req.LogisticsUserID, req.WarehouseID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

// warehouseStock returns the consistent warehouse aggregate
func (h *Handler) warehouseStock(c *gin.Context) {
	warehouseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	snapshot, err := h.stockLedger.Snapshot(c.Request.Context(), warehouseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// warehouseLowStock lists allocations at or below their safety floor
func (h *Handler) warehouseLowStock(c *gin.Context) {
	warehouseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	allocs, err := h.stockLedger.LowStock(c.Request.Context(), warehouseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allocations": allocs})
}

// productAvailability answers availability for one (product, warehouse) pair
func (h *Handler) productAvailability(c *gin.Context) {
	warehouseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}

	avail, err := h.stockLedger.GetAvailable(c.Request.Context(), productID, warehouseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, avail)
}

// recordDeliveryAttempt registers a failed delivery attempt on a shipment
func (h *Handler) recordDeliveryAttempt(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	attempts, err := h.assignmentService.RecordDeliveryAttempt(c.Request.Context(), actorFrom(c), shipmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivery_attempts": attempts})
}

// markNotificationRead flips the read flag on the actor's notification
func (h *Handler) markNotificationRead(c *gin.Context) {
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orderService.MarkNotificationRead(c.Request.Context(), actorFrom(c), notificationID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
