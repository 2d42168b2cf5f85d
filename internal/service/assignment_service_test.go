package service

import (
	"context"
	"strings"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssignmentService(st *mockStore) (*AssignmentService, *mockDispatcher) {
	d := &mockDispatcher{}
	return NewAssignmentService(st, d), d
}

func newAssignmentStore() *mockStore {
	st := newMockStore()
	st.users[courierID] = &models.User{ID: courierID, Name: "Courier One", Role: models.RoleLogistics}
	st.users[40] = &models.User{ID: 40, Name: "Merchant Owner", Role: models.RoleMerchant}
	st.warehouses[5] = &models.Warehouse{ID: 5, Name: "Central", Region: "JKT"}
	st.addOrder(models.Order{ID: 1, MerchantID: 100, Status: models.StatusAwaitingAlloc})
	return st
}

func TestAssignLogistics(t *testing.T) {
	t.Run("assigns courier and creates shipment", func(t *testing.T) {
		st := newAssignmentStore()
		svc, d := newAssignmentService(st)

		got, err := svc.AssignLogistics(context.Background(), admin, 1, courierID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPickedUp, got.Status)
		require.NotNil(t, got.AssignedLogisticsID)
		assert.Equal(t, courierID, *got.AssignedLogisticsID)

		sh, err := st.GetShipmentByOrderID(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sh.TrackingNumber, "TRK-"))
		assert.Equal(t, "Courier One", sh.CarrierName)

		assert.Equal(t, 1, d.count(models.EventTypeLogisticsAssigned))
		assert.Equal(t, 1, d.count(models.EventTypeOrderStatusChanged))
	})

	t.Run("assignment from NEW skips the pipeline", func(t *testing.T) {
		st := newAssignmentStore()
		st.orders[1].Status = models.StatusNew
		svc, _ := newAssignmentService(st)
		ctx := context.Background()

		got, err := svc.AssignLogistics(ctx, admin, 1, courierID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPickedUp, got.Status)

		sh, err := st.GetShipmentByOrderID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sh.OrderID)

		// A second call with the same courier leaves one shipment row.
		_, err = svc.AssignLogistics(ctx, admin, 1, courierID)
		require.NoError(t, err)
		assert.Len(t, st.shipments, 1)
	})

	t.Run("repeat assignment reuses the shipment", func(t *testing.T) {
		st := newAssignmentStore()
		svc, d := newAssignmentService(st)
		ctx := context.Background()

		_, err := svc.AssignLogistics(ctx, admin, 1, courierID)
		require.NoError(t, err)
		first, err := st.GetShipmentByOrderID(ctx, 1)
		require.NoError(t, err)

		// Rebinding a different courier while the order is PICKED_UP must not
		// create a second shipment row.
		st.users[31] = &models.User{ID: 31, Name: "Courier Two", Role: models.RoleLogistics}
		got, err := svc.AssignLogistics(ctx, admin, 1, 31)
		require.NoError(t, err)
		assert.Equal(t, int64(31), *got.AssignedLogisticsID)

		second, err := st.GetShipmentByOrderID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, st.shipments, 1)

		// No status-changed event for the PICKED_UP -> PICKED_UP rebind.
		assert.Equal(t, 2, d.count(models.EventTypeLogisticsAssigned))
		assert.Equal(t, 1, d.count(models.EventTypeOrderStatusChanged))
	})

	t.Run("non-admin denied", func(t *testing.T) {
		st := newAssignmentStore()
		svc, _ := newAssignmentService(st)

		_, err := svc.AssignLogistics(context.Background(), merchantActor, 1, courierID)
		assert.ErrorIs(t, err, models.ErrAccessDenied)
	})

	t.Run("assignee must be a logistics user", func(t *testing.T) {
		st := newAssignmentStore()
		svc, _ := newAssignmentService(st)

		_, err := svc.AssignLogistics(context.Background(), admin, 1, 40)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("order must be assignable", func(t *testing.T) {
		st := newAssignmentStore()
		st.orders[1].Status = models.StatusDelivered
		svc, _ := newAssignmentService(st)

		_, err := svc.AssignLogistics(context.Background(), admin, 1, courierID)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestRemoveLogistics(t *testing.T) {
	st := newAssignmentStore()
	svc, d := newAssignmentService(st)
	ctx := context.Background()

	_, err := svc.AssignLogistics(ctx, admin, 1, courierID)
	require.NoError(t, err)
	sh, err := st.GetShipmentByOrderID(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveLogistics(ctx, admin, sh.ID))
	assert.Nil(t, st.orders[1].AssignedLogisticsID)
	// Removal does not rewind the order status.
	assert.Equal(t, models.StatusPickedUp, st.orders[1].Status)
	assert.Equal(t, 1, d.count(models.EventTypeLogisticsRemoved))

	assert.ErrorIs(t, svc.RemoveLogistics(ctx, merchantActor, sh.ID), models.ErrAccessDenied)
	assert.ErrorIs(t, svc.RemoveLogistics(ctx, admin, 999), models.ErrNotFound)
}

func TestAssignWarehouseRegion(t *testing.T) {
	st := newAssignmentStore()
	svc, _ := newAssignmentService(st)
	ctx := context.Background()

	require.NoError(t, svc.AssignWarehouseRegion(ctx, admin, courierID, 5))

	// The pair is unique.
	err := svc.AssignWarehouseRegion(ctx, admin, courierID, 5)
	assert.ErrorIs(t, err, models.ErrConflict)

	assert.ErrorIs(t, svc.AssignWarehouseRegion(ctx, courierActor, courierID, 5), models.ErrAccessDenied)
	assert.ErrorIs(t, svc.AssignWarehouseRegion(ctx, admin, 40, 5), models.ErrNotFound)
	assert.ErrorIs(t, svc.AssignWarehouseRegion(ctx, admin, courierID, 99), models.ErrNotFound)
}

func TestRecordDeliveryAttempt(t *testing.T) {
	st := newAssignmentStore()
	svc, d := newAssignmentService(st)
	ctx := context.Background()

	_, err := svc.AssignLogistics(ctx, admin, 1, courierID)
	require.NoError(t, err)
	sh, err := st.GetShipmentByOrderID(ctx, 1)
	require.NoError(t, err)

	attempts, err := svc.RecordDeliveryAttempt(ctx, courierActor, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	attempts, err = svc.RecordDeliveryAttempt(ctx, admin, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, d.count(models.EventTypeDeliveryAttempt))

	_, err = svc.RecordDeliveryAttempt(ctx, otherCourier, sh.ID)
	assert.ErrorIs(t, err, models.ErrAccessDenied)

	_, err = svc.RecordDeliveryAttempt(ctx, merchantActor, sh.ID)
	assert.ErrorIs(t, err, models.ErrAccessDenied)
}
