package bid

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no bid row exists for the identifier.
var ErrNotFound = errors.New("bid: not found")

const bidColumns = "id, order_id, investor_id, bid_amount, status, created_at"

// Repository provides data access for bids.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, b Bid) (Bid, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Bid, error)
	MarkWon(ctx context.Context, tx pgx.Tx, id string) (Bid, error)
	ListPending(ctx context.Context) ([]Bid, error)
	ListByOrder(ctx context.Context, orderID string) ([]Bid, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed bid repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, b Bid) (Bid, error) {
	query := fmt.Sprintf(`
		INSERT INTO bids (id, order_id, investor_id, bid_amount, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
		RETURNING %s
	`, bidColumns)

	created, err := scanBid(tx.QueryRow(ctx, query, b.ID, b.OrderID, b.InvestorID, b.Amount, b.Status))
	if err != nil {
		return Bid{}, fmt.Errorf("bid: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Bid, error) {
	query := fmt.Sprintf(`SELECT %s FROM bids WHERE id = $1 FOR UPDATE`, bidColumns)

	b, err := scanBid(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bid{}, ErrNotFound
		}
		return Bid{}, fmt.Errorf("bid: get for update: %w", err)
	}
	return b, nil
}

// MarkWon flips the bid to won. The partial unique index on
// (order_id) WHERE status='won' backs the one-winner-per-order invariant.
func (r *PGRepository) MarkWon(ctx context.Context, tx pgx.Tx, id string) (Bid, error) {
	query := fmt.Sprintf(`
		UPDATE bids
		SET status = 'won'
		WHERE id = $1
		RETURNING %s
	`, bidColumns)

	b, err := scanBid(tx.QueryRow(ctx, query, id))
	if err != nil {
		return Bid{}, fmt.Errorf("bid: mark won: %w", err)
	}
	return b, nil
}

// ListPending returns every pending bid, newest first; drives the admin bid
// management view.
func (r *PGRepository) ListPending(ctx context.Context) ([]Bid, error) {
	query := fmt.Sprintf(`SELECT %s FROM bids WHERE status = 'pending' ORDER BY created_at DESC`, bidColumns)
	return r.queryBids(ctx, query)
}

func (r *PGRepository) ListByOrder(ctx context.Context, orderID string) ([]Bid, error) {
	query := fmt.Sprintf(`SELECT %s FROM bids WHERE order_id = $1 ORDER BY created_at ASC`, bidColumns)
	return r.queryBids(ctx, query, orderID)
}

func (r *PGRepository) queryBids(ctx context.Context, query string, args ...any) ([]Bid, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bid: query list: %w", err)
	}
	defer rows.Close()

	list := []Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("bid: scan: %w", err)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bid: iterate: %w", err)
	}
	return list, nil
}

func scanBid(row pgx.Row) (Bid, error) {
	var b Bid
	return b, row.Scan(
		&b.ID,
		&b.OrderID,
		&b.InvestorID,
		&b.Amount,
		&b.Status,
		&b.CreatedAt,
	)
}
