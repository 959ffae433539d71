package revenue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals no revenue record exists for the order.
	ErrNotFound = errors.New("revenue: not found")
	// ErrAlreadyDistributed signals a second record for the same order hit the
	// unique key on order_id.
	ErrAlreadyDistributed = errors.New("revenue: already distributed for order")
)

// Record mirrors the revenues table. Records are written exactly once per
// delivered order and never mutated or deleted.
type Record struct {
	ID              string
	OrderID         string
	ContractorID    *string
	BrokerID        *string
	InvestorID      *string
	AdminID         *string
	ContractorShare float64
	BrokerShare     float64
	InvestorShare   float64
	AdminShare      float64
	CreatedAt       time.Time
}

const revenueColumns = `id, order_id, contractor_id, broker_id, investor_id, admin_id,
	contractor_share, broker_share, investor_share, admin_share, created_at`

// Repository provides data access for revenue records.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetByOrder(ctx context.Context, orderID string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed revenue repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert persists the split inside the caller's transaction. The unique key
// on order_id makes the write idempotent under retry: a duplicate surfaces as
// ErrAlreadyDistributed instead of a second record.
func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	query := fmt.Sprintf(`
		INSERT INTO revenues (order_id, contractor_id, broker_id, investor_id, admin_id,
			contractor_share, broker_share, investor_share, admin_share)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, revenueColumns)

	created, err := scanRecord(tx.QueryRow(ctx, query,
		rec.OrderID,
		rec.ContractorID,
		rec.BrokerID,
		rec.InvestorID,
		rec.AdminID,
		rec.ContractorShare,
		rec.BrokerShare,
		rec.InvestorShare,
		rec.AdminShare,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrAlreadyDistributed
		}
		return Record{}, fmt.Errorf("revenue: insert: %w", err)
	}
	return created, nil
}

// GetByOrder returns the record for one delivered order.
func (r *PGRepository) GetByOrder(ctx context.Context, orderID string) (Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM revenues WHERE order_id = $1`, revenueColumns)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("revenue: get by order: %w", err)
	}
	return rec, nil
}

// List returns every revenue record, newest first; the admin summary view.
func (r *PGRepository) List(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM revenues ORDER BY created_at DESC`, revenueColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("revenue: list: %w", err)
	}
	defer rows.Close()

	list := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("revenue: scan: %w", err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revenue: iterate: %w", err)
	}
	return list, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	return rec, row.Scan(
		&rec.ID,
		&rec.OrderID,
		&rec.ContractorID,
		&rec.BrokerID,
		&rec.InvestorID,
		&rec.AdminID,
		&rec.ContractorShare,
		&rec.BrokerShare,
		&rec.InvestorShare,
		&rec.AdminShare,
		&rec.CreatedAt,
	)
}
