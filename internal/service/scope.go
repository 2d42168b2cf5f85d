package service

import (
	"fmt"

	"fulfillment-service/internal/models"
)

// ScopeForActor maps an actor to the one order scope every read and write
// path shares. Keeping this in a single place is the tenant-isolation
// boundary; endpoints must never re-derive it.
func ScopeForActor(actor models.Actor) (models.OrderScope, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return models.OrderScope{All: true}, nil
	case models.RoleMerchant, models.RoleStaff:
		businessID := actor.BusinessID
		return models.OrderScope{MerchantID: &businessID}, nil
	case models.RoleLogistics:
		actorID := actor.ID
		return models.OrderScope{LogisticsID: &actorID}, nil
	}
	return models.OrderScope{}, fmt.Errorf("role %q: %w", actor.Role, models.ErrAccessDenied)
}

// checkOrderAccess applies the actor's scope to a single order.
func checkOrderAccess(actor models.Actor, order *models.Order) error {
	scope, err := ScopeForActor(actor)
	if err != nil {
		return err
	}
	if !scope.Allows(order) {
		return fmt.Errorf("order %d not visible to actor %d: %w", order.ID, actor.ID, models.ErrAccessDenied)
	}
	return nil
}
