package service

import (
	"fmt"

	"fulfillment-service/internal/models"
)

// knownStatuses is the closed value set. No write path may introduce a status
// outside of it.
var knownStatuses = map[string]bool{
	models.StatusNew:           true,
	models.StatusAwaitingAlloc: true,
	models.StatusDispatched:    true,
	models.StatusPickedUp:      true,
	models.StatusDelivering:    true,
	models.StatusDelivered:     true,
	models.StatusReturned:      true,
	models.StatusCanceled:      true,
	models.StatusOnHold:        true,
}

var terminalStatuses = map[string]bool{
	models.StatusDelivered: true,
	models.StatusReturned:  true,
	models.StatusCanceled:  true,
}

// transitions maps a source status to the targets this engine accepts.
// CANCELED and ON_HOLD are listed per source rather than special-cased so the
// table stays the single authority. ON_HOLD resume is handled separately
// because its target depends on the order's recorded held-from status.
var transitions = map[string]map[string]bool{
	models.StatusNew: {
		models.StatusAwaitingAlloc: true,
		models.StatusCanceled:      true,
		models.StatusOnHold:        true,
	},
	models.StatusAwaitingAlloc: {
		models.StatusDispatched: true,
		models.StatusPickedUp:   true,
		models.StatusCanceled:   true,
		models.StatusOnHold:     true,
	},
	models.StatusDispatched: {
		models.StatusPickedUp:   true,
		models.StatusDelivering: true,
		models.StatusCanceled:   true,
		models.StatusOnHold:     true,
	},
	models.StatusPickedUp: {
		models.StatusDelivering: true,
		models.StatusCanceled:   true,
		models.StatusOnHold:     true,
	},
	models.StatusDelivering: {
		models.StatusDelivered: true,
		models.StatusReturned:  true,
		models.StatusCanceled:  true,
		models.StatusOnHold:    true,
	},
	models.StatusDelivered: {},
	models.StatusReturned:  {},
	models.StatusCanceled:  {},
	models.StatusOnHold: {
		models.StatusCanceled: true,
	},
}

// IsTerminalStatus reports whether no further transitions are accepted
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// ValidateTransition checks whether actor may move order to target. Checks run
// in a fixed sequence: unknown target first, then actor permission, then state
// validity. The permission check precedes the state check, so an actor with no
// right to the target gets ErrAccessDenied even when the transition itself
// would also be invalid.
func ValidateTransition(order *models.Order, actor models.Actor, target string) error {
	if !knownStatuses[target] {
		return fmt.Errorf("status %q: %w", target, models.ErrUnknownStatus)
	}

	if order.Status == models.StatusOnHold && target != models.StatusCanceled {
		// Resuming a held order is an operator override: admin only, and only
		// to the recorded held-from status.
		if actor.Role != models.RoleAdmin {
			return fmt.Errorf("role %s may not resume a held order: %w", actor.Role, models.ErrAccessDenied)
		}
		if order.HeldFromStatus == nil || *order.HeldFromStatus != target {
			return fmt.Errorf("order %d on hold, cannot resume to %s: %w",
				order.ID, target, models.ErrInvalidTransition)
		}
		return nil
	}

	if err := checkTransitionPermission(order, actor, target); err != nil {
		return err
	}

	if terminalStatuses[order.Status] {
		return fmt.Errorf("order %d is %s: %w", order.ID, order.Status, models.ErrInvalidTransition)
	}

	if !transitions[order.Status][target] {
		return fmt.Errorf("%s -> %s: %w", order.Status, target, models.ErrInvalidTransition)
	}
	return nil
}

// checkTransitionPermission enforces who may trigger a transition into target.
func checkTransitionPermission(order *models.Order, actor models.Actor, target string) error {
	switch target {
	case models.StatusAwaitingAlloc:
		// Allocation precedes logistics involvement: admin or the owning merchant.
		if actor.Role == models.RoleAdmin || isOwningMerchant(order, actor) {
			return nil
		}

	case models.StatusCanceled:
		if actor.Role == models.RoleAdmin || isOwningMerchant(order, actor) {
			return nil
		}

	case models.StatusOnHold:
		// Operator override.
		if actor.Role == models.RoleAdmin {
			return nil
		}

	case models.StatusDelivering, models.StatusDelivered:
		// Only the logistics actor currently assigned to the order.
		if isAssignedLogistics(order, actor) {
			return nil
		}

	case models.StatusReturned:
		if actor.Role == models.RoleAdmin || isAssignedLogistics(order, actor) {
			return nil
		}

	case models.StatusPickedUp:
		// Normally set by assignment; direct DISPATCHED -> PICKED_UP is open to
		// the assigned logistics actor or an admin.
		if actor.Role == models.RoleAdmin || isAssignedLogistics(order, actor) {
			return nil
		}

	default:
		// NEW, DISPATCHED: admin-only targets.
		if actor.Role == models.RoleAdmin {
			return nil
		}
	}

	return fmt.Errorf("role %s may not set status %s: %w", actor.Role, target, models.ErrAccessDenied)
}

func isOwningMerchant(order *models.Order, actor models.Actor) bool {
	return (actor.Role == models.RoleMerchant || actor.Role == models.RoleStaff) &&
		actor.BusinessID == order.MerchantID
}

func isAssignedLogistics(order *models.Order, actor models.Actor) bool {
	return actor.Role == models.RoleLogistics &&
		order.AssignedLogisticsID != nil &&
		*order.AssignedLogisticsID == actor.ID
}
