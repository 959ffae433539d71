// Package delivery advances funded orders through allocation and delivery
// and triggers revenue distribution.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"orderflow/auth"
	"orderflow/event"
	"orderflow/fault"
	"orderflow/order"
	"orderflow/revenue"
)

// Transitioner applies plain status transitions; satisfied by
// order.TransitionService.
type Transitioner interface {
	Transition(ctx context.Context, actor auth.Actor, orderID string, target order.Status) (order.Order, error)
}

// Service tracks allocation and delivery of funded orders.
type Service struct {
	pool        order.TxBeginner
	orders      order.Repository
	revenues    revenue.Repository
	transitions Transitioner
}

// NewService wires the tracker.
func NewService(pool order.TxBeginner, orders order.Repository, revenues revenue.Repository, transitions Transitioner) *Service {
	return &Service{
		pool:        pool,
		orders:      orders,
		revenues:    revenues,
		transitions: transitions,
	}
}

// Allocate moves a funded order to allocated on behalf of a sourcing agent.
func (s *Service) Allocate(ctx context.Context, actor auth.Actor, orderID string) (order.Order, error) {
	return s.transitions.Transition(ctx, actor, orderID, order.StatusAllocated)
}

// ConfirmDelivery closes out an allocated order: it marks the order
// delivered, flips revenue_distributed, and persists the four-way split, all
// inside one transaction. There is no window where the order is delivered
// without its revenue record.
func (s *Service) ConfirmDelivery(ctx context.Context, actor auth.Actor, orderID string) (order.Order, revenue.Record, error) {
	const op = "delivery.confirm"

	if err := auth.RequireKYC(op, actor); err != nil {
		return order.Order{}, revenue.Record{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return order.Order{}, revenue.Record{}, fmt.Errorf("delivery: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return order.Order{}, revenue.Record{}, fault.Wrap(fault.KindNotFound, op, err)
		}
		return order.Order{}, revenue.Record{}, err
	}

	if current.Status != order.StatusAllocated {
		return order.Order{}, revenue.Record{}, fault.InvalidTransition(op,
			fmt.Sprintf("order %s is %s, delivery requires allocated", orderID, current.Status))
	}
	if current.RevenueDistributed {
		return order.Order{}, revenue.Record{}, fault.InvalidTransition(op,
			fmt.Sprintf("revenue already distributed for order %s", orderID))
	}
	if !order.RoleAllowed(actor, order.StatusAllocated, order.StatusDelivered) {
		return order.Order{}, revenue.Record{}, fault.Unauthorized(op, "client or admin role required")
	}
	if current.FundedAmount == nil || current.FundedBy == nil {
		return order.Order{}, revenue.Record{}, fault.Reconciliation(op,
			fmt.Sprintf("order %s reached allocated without funding fields", orderID))
	}

	delivered, err := s.orders.MarkDelivered(ctx, tx, orderID)
	if err != nil {
		return order.Order{}, revenue.Record{}, err
	}

	shares := revenue.ComputeShares(*current.FundedAmount)
	rec, err := s.revenues.Insert(ctx, tx, revenue.Record{
		OrderID:         orderID,
		ContractorID:    current.ContractorID,
		BrokerID:        &current.BrokerID,
		InvestorID:      current.FundedBy,
		AdminID:         current.AdminID,
		ContractorShare: shares.Contractor,
		BrokerShare:     shares.Broker,
		InvestorShare:   shares.Investor,
		AdminShare:      shares.Admin,
	})
	if err != nil {
		if errors.Is(err, revenue.ErrAlreadyDistributed) {
			return order.Order{}, revenue.Record{}, fault.Wrap(fault.KindReconciliation, op, err)
		}
		return order.Order{}, revenue.Record{}, err
	}

	payload := map[string]any{
		"order_id":         orderID,
		"funded_amount":    *current.FundedAmount,
		"contractor_share": shares.Contractor,
		"broker_share":     shares.Broker,
		"investor_share":   shares.Investor,
		"admin_share":      shares.Admin,
	}
	if err := event.AppendTimeline(ctx, tx, orderID, event.TypeRevenueDistributed, actor.UserID, payload); err != nil {
		return order.Order{}, revenue.Record{}, err
	}
	if err := event.EnqueueOutbox(ctx, tx, event.TopicOrderDelivered, payload); err != nil {
		return order.Order{}, revenue.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return order.Order{}, revenue.Record{}, fmt.Errorf("delivery: commit: %w", err)
	}

	return delivered, rec, nil
}
