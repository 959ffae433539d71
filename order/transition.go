package order

import (
	"context"
	"errors"
	"fmt"

	"orderflow/auth"
	"orderflow/event"
	"orderflow/fault"
)

// AdminResolver supplies the single admin account stamped onto an order at
// approval time.
type AdminResolver interface {
	ResolveAdmin(ctx context.Context) (auth.User, error)
}

// TransitionService applies status transitions requested directly by actors:
// approve, reject, allocate. Funding and delivery carry extra linked writes
// and live with the bid ledger and the delivery tracker respectively; asking
// for those edges here is rejected.
type TransitionService struct {
	pool   TxBeginner
	repo   Repository
	admins AdminResolver
}

// NewTransitionService wires the transition engine.
func NewTransitionService(pool TxBeginner, repo Repository, admins AdminResolver) *TransitionService {
	return &TransitionService{pool: pool, repo: repo, admins: admins}
}

// Transition validates and applies actor -> target on the order, holding the
// row lock for the whole read-check-write sequence.
func (s *TransitionService) Transition(ctx context.Context, actor auth.Actor, orderID string, target Status) (Order, error) {
	const op = "order.transition"

	if !ValidStatus(target) {
		return Order{}, fault.Validation(op, fmt.Sprintf("unknown status %q", target))
	}
	switch target {
	case StatusFunded:
		return Order{}, fault.InvalidTransition(op, "funding is performed through bid selection")
	case StatusDelivered:
		return Order{}, fault.InvalidTransition(op, "delivery is confirmed through the delivery tracker")
	}
	if err := auth.RequireKYC(op, actor); err != nil {
		return Order{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, fault.Wrap(fault.KindNotFound, op, err)
		}
		return Order{}, err
	}

	if !CanTransition(current.Status, target) {
		return Order{}, fault.InvalidTransition(op,
			fmt.Sprintf("%s -> %s is not a legal edge", current.Status, target))
	}
	if !RoleAllowed(actor, current.Status, target) {
		return Order{}, fault.Unauthorized(op,
			fmt.Sprintf("role %s may not perform %s -> %s", actor.Role, current.Status, target))
	}

	var updated Order
	switch target {
	case StatusApproved:
		admin, err := s.admins.ResolveAdmin(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrNoAdmin) || errors.Is(err, auth.ErrMultipleAdmins) {
				return Order{}, fault.Wrap(fault.KindReconciliation, op, err)
			}
			return Order{}, err
		}
		updated, err = s.repo.MarkApproved(ctx, tx, orderID, actor.UserID, admin.ID)
		if err != nil {
			return Order{}, err
		}
	case StatusRejected:
		updated, err = s.repo.MarkRejected(ctx, tx, orderID)
		if err != nil {
			return Order{}, err
		}
	case StatusAllocated:
		updated, err = s.repo.MarkAllocated(ctx, tx, orderID)
		if err != nil {
			return Order{}, err
		}
	default:
		return Order{}, fault.InvalidTransition(op, fmt.Sprintf("unsupported target %s", target))
	}

	payload := map[string]any{
		"order_id":        orderID,
		"previous_status": current.Status,
		"next_status":     target,
		"actor_id":        actor.UserID,
	}
	if err := event.AppendTimeline(ctx, tx, orderID, event.TypeOrderStatusChanged, actor.UserID, payload); err != nil {
		return Order{}, err
	}
	if err := event.EnqueueOutbox(ctx, tx, event.TopicOrderStatusChanged, payload); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("order: commit transition: %w", err)
	}

	return updated, nil
}
