package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"orderflow/auth"
	"orderflow/event"
	"orderflow/fault"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service owns order creation and dashboard reads.
type Service struct {
	pool        TxBeginner
	repo        Repository
	idGenerator func() string
	now         func() time.Time
}

// NewService builds the order service. A nil repo defaults to the
// pgxpool-backed repository when pool is a *pgxpool.Pool.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// WithIDGenerator overrides order ID generation; test seam.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the service clock; test seam.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams carries broker input for a new order.
type CreateParams struct {
	ContractorEmail string
	Description     string
}

// Create opens a new pending order on behalf of a broker.
func (s *Service) Create(ctx context.Context, actor auth.Actor, params CreateParams) (Order, error) {
	const op = "order.create"

	if actor.Role != auth.RoleBroker {
		return Order{}, fault.Unauthorized(op, "broker role required")
	}
	if err := auth.RequireKYC(op, actor); err != nil {
		return Order{}, err
	}
	if strings.TrimSpace(params.ContractorEmail) == "" {
		return Order{}, fault.Validation(op, "contractor email is required")
	}
	if strings.TrimSpace(params.Description) == "" {
		return Order{}, fault.Validation(op, "description is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, Order{
		ID:              s.idGenerator(),
		BrokerID:        actor.UserID,
		ContractorEmail: params.ContractorEmail,
		Description:     params.Description,
		Status:          StatusPending,
	})
	if err != nil {
		return Order{}, err
	}

	payload := map[string]any{
		"order_id":         created.ID,
		"broker_id":        created.BrokerID,
		"contractor_email": created.ContractorEmail,
	}
	if err := event.AppendTimeline(ctx, tx, created.ID, event.TypeOrderCreated, actor.UserID, payload); err != nil {
		return Order{}, err
	}
	if err := event.EnqueueOutbox(ctx, tx, event.TopicOrderCreated, payload); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("order: commit create: %w", err)
	}

	return created, nil
}

// Get returns one order by ID.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return Order{}, fault.Wrap(fault.KindNotFound, "order.get", err)
		}
		return Order{}, err
	}
	return o, nil
}

// ListByStatus drives the per-role dashboard filters: contractors watch
// pending, investors approved, sourcing agents funded.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	if !ValidStatus(status) {
		return nil, fault.Validation("order.list", fmt.Sprintf("unknown status %q", status))
	}
	return s.repo.ListByStatus(ctx, status)
}

// ListAll returns every order; client and admin monitors.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	return s.repo.ListAll(ctx)
}
