package bid

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"orderflow/auth"
	"orderflow/event"
	"orderflow/fault"
	"orderflow/order"
)

// Service is the bid ledger: it records funding offers against approved
// orders and promotes one of them to the winner.
type Service struct {
	pool        order.TxBeginner
	repo        Repository
	orders      order.Repository
	idGenerator func() string
}

// NewService wires the bid ledger.
func NewService(pool order.TxBeginner, repo Repository, orders order.Repository) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		orders:      orders,
		idGenerator: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides bid ID generation; test seam.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Place records a pending bid from an investor against an approved order.
// All input checks run before any write. Re-bidding by the same investor is
// allowed.
func (s *Service) Place(ctx context.Context, actor auth.Actor, orderID string, amount float64) (Bid, error) {
	const op = "bid.place"

	if actor.Role != auth.RoleInvestor {
		return Bid{}, fault.Unauthorized(op, "investor role required")
	}
	if err := auth.RequireKYC(op, actor); err != nil {
		return Bid{}, err
	}
	if amount <= 0 {
		return Bid{}, fault.Validation(op, "bid amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Bid{}, fmt.Errorf("bid: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	target, err := s.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Bid{}, fault.Wrap(fault.KindNotFound, op, err)
		}
		return Bid{}, err
	}
	if target.Status != order.StatusApproved {
		return Bid{}, fault.Validation(op,
			fmt.Sprintf("order %s is %s, bids require approved", orderID, target.Status))
	}

	placed, err := s.repo.Insert(ctx, tx, Bid{
		ID:         s.idGenerator(),
		OrderID:    orderID,
		InvestorID: actor.UserID,
		Amount:     amount,
		Status:     StatusPending,
	})
	if err != nil {
		return Bid{}, err
	}

	payload := map[string]any{
		"bid_id":      placed.ID,
		"order_id":    orderID,
		"investor_id": actor.UserID,
		"amount":      amount,
	}
	if err := event.AppendTimeline(ctx, tx, orderID, event.TypeBidPlaced, actor.UserID, payload); err != nil {
		return Bid{}, err
	}
	if err := event.EnqueueOutbox(ctx, tx, event.TopicBidPlaced, payload); err != nil {
		return Bid{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Bid{}, fmt.Errorf("bid: commit place: %w", err)
	}

	return placed, nil
}

// SelectWinner marks the chosen bid won and the referenced order funded as
// one transaction. The order row lock plus the still-approved check guard
// against double-funding: a second selection finds the order already funded
// and fails before any write.
func (s *Service) SelectWinner(ctx context.Context, actor auth.Actor, bidID string) (Bid, order.Order, error) {
	const op = "bid.select_winner"

	if err := auth.RequireKYC(op, actor); err != nil {
		return Bid{}, order.Order{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Bid{}, order.Order{}, fmt.Errorf("bid: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	chosen, err := s.repo.GetForUpdate(ctx, tx, bidID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Bid{}, order.Order{}, fault.Wrap(fault.KindNotFound, op, err)
		}
		return Bid{}, order.Order{}, err
	}
	if chosen.Status != StatusPending {
		return Bid{}, order.Order{}, fault.InvalidTransition(op,
			fmt.Sprintf("bid %s already %s", bidID, chosen.Status))
	}

	target, err := s.orders.GetForUpdate(ctx, tx, chosen.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Bid{}, order.Order{}, fault.Wrap(fault.KindNotFound, op, err)
		}
		return Bid{}, order.Order{}, err
	}
	if target.Status != order.StatusApproved {
		return Bid{}, order.Order{}, fault.InvalidTransition(op,
			fmt.Sprintf("order %s is %s, selection requires approved", target.ID, target.Status))
	}
	if !order.RoleAllowed(actor, order.StatusApproved, order.StatusFunded) {
		return Bid{}, order.Order{}, fault.Unauthorized(op, "admin or broker role required")
	}
	if actor.Role == auth.RoleBroker && actor.UserID != target.BrokerID {
		return Bid{}, order.Order{}, fault.Unauthorized(op, "only the order's broker may select a bid")
	}

	won, err := s.repo.MarkWon(ctx, tx, bidID)
	if err != nil {
		return Bid{}, order.Order{}, err
	}
	funded, err := s.orders.MarkFunded(ctx, tx, chosen.OrderID, chosen.InvestorID, chosen.Amount)
	if err != nil {
		return Bid{}, order.Order{}, err
	}

	payload := map[string]any{
		"bid_id":        won.ID,
		"order_id":      funded.ID,
		"funded_by":     chosen.InvestorID,
		"funded_amount": chosen.Amount,
	}
	if err := event.AppendTimeline(ctx, tx, funded.ID, event.TypeBidWon, actor.UserID, payload); err != nil {
		return Bid{}, order.Order{}, err
	}
	if err := event.EnqueueOutbox(ctx, tx, event.TopicOrderFunded, payload); err != nil {
		return Bid{}, order.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Bid{}, order.Order{}, fmt.Errorf("bid: commit selection: %w", err)
	}

	return won, funded, nil
}

// ListPending returns pending bids for the admin bid management view.
func (s *Service) ListPending(ctx context.Context) ([]Bid, error) {
	return s.repo.ListPending(ctx)
}

// ListByOrder returns all bids recorded against one order.
func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]Bid, error) {
	return s.repo.ListByOrder(ctx, orderID)
}
