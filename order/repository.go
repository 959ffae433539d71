package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no order row exists for the identifier.
var ErrNotFound = errors.New("order: not found")

const orderColumns = `id, broker_id, contractor_email, description, status,
	contractor_id, admin_id, funded_by, funded_amount, revenue_distributed,
	created_at, approved_at, delivered_at, updated_at`

// Repository provides data access for orders. Write methods that participate
// in multi-step operations take the caller's transaction.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, o Order) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	MarkApproved(ctx context.Context, tx pgx.Tx, id, contractorID, adminID string) (Order, error)
	MarkRejected(ctx context.Context, tx pgx.Tx, id string) (Order, error)
	MarkFunded(ctx context.Context, tx pgx.Tx, id, investorID string, amount float64) (Order, error)
	MarkAllocated(ctx context.Context, tx pgx.Tx, id string) (Order, error)
	MarkDelivered(ctx context.Context, tx pgx.Tx, id string) (Order, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed order repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, o Order) (Order, error) {
	query := fmt.Sprintf(`
		INSERT INTO orders (id, broker_id, contractor_email, description, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
		RETURNING %s
	`, orderColumns)

	created, err := scanOrder(tx.QueryRow(ctx, query, o.ID, o.BrokerID, o.ContractorEmail, o.Description, o.Status))
	if err != nil {
		return Order{}, fmt.Errorf("order: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}

// GetForUpdate locks the order row for the remainder of the transaction so
// concurrent transitions serialize on it.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1 FOR UPDATE`, orderColumns)

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get for update: %w", err)
	}
	return o, nil
}

func (r *PGRepository) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE status = $1 ORDER BY created_at DESC`, orderColumns)
	return r.queryOrders(ctx, query, status)
}

func (r *PGRepository) ListAll(ctx context.Context) ([]Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders ORDER BY created_at DESC`, orderColumns)
	return r.queryOrders(ctx, query)
}

// MarkApproved stamps the approving contractor and the resolved admin in the
// same write that advances the status.
func (r *PGRepository) MarkApproved(ctx context.Context, tx pgx.Tx, id, contractorID, adminID string) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = 'approved',
		    contractor_id = $2,
		    admin_id = $3,
		    approved_at = now(),
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(tx.QueryRow(ctx, query, id, contractorID, adminID))
	if err != nil {
		return Order{}, fmt.Errorf("order: mark approved: %w", err)
	}
	return o, nil
}

func (r *PGRepository) MarkRejected(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	return r.setStatus(ctx, tx, id, StatusRejected)
}

// MarkFunded records the winning investor and amount alongside the status
// change.
func (r *PGRepository) MarkFunded(ctx context.Context, tx pgx.Tx, id, investorID string, amount float64) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = 'funded',
		    funded_by = $2,
		    funded_amount = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(tx.QueryRow(ctx, query, id, investorID, amount))
	if err != nil {
		return Order{}, fmt.Errorf("order: mark funded: %w", err)
	}
	return o, nil
}

func (r *PGRepository) MarkAllocated(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	return r.setStatus(ctx, tx, id, StatusAllocated)
}

// MarkDelivered flips revenue_distributed in the same write; the caller
// inserts the revenue record inside the same transaction.
func (r *PGRepository) MarkDelivered(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = 'delivered',
		    delivered_at = now(),
		    revenue_distributed = TRUE,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		return Order{}, fmt.Errorf("order: mark delivered: %w", err)
	}
	return o, nil
}

func (r *PGRepository) setStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		return Order{}, fmt.Errorf("order: set status %s: %w", status, err)
	}
	return o, nil
}

func (r *PGRepository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("order: query list: %w", err)
	}
	defer rows.Close()

	list := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order: scan: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate: %w", err)
	}
	return list, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	return o, row.Scan(
		&o.ID,
		&o.BrokerID,
		&o.ContractorEmail,
		&o.Description,
		&o.Status,
		&o.ContractorID,
		&o.AdminID,
		&o.FundedBy,
		&o.FundedAmount,
		&o.RevenueDistributed,
		&o.CreatedAt,
		&o.ApprovedAt,
		&o.DeliveredAt,
		&o.UpdatedAt,
	)
}
