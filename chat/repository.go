package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = "id, order_id, sender_id, body, created_at"

// Repository provides data access for chat messages.
type Repository interface {
	Insert(ctx context.Context, m Message) (Message, error)
	ListByOrder(ctx context.Context, orderID string) ([]Message, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed chat repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, m Message) (Message, error) {
	query := fmt.Sprintf(`
		INSERT INTO chat_messages (order_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING %s
	`, messageColumns)

	created, err := scanMessage(r.pool.QueryRow(ctx, query, m.OrderID, m.SenderID, m.Text))
	if err != nil {
		return Message{}, fmt.Errorf("chat: insert: %w", err)
	}
	return created, nil
}

// ListByOrder returns the full conversation in non-decreasing created_at
// order; id breaks ties so the ordering is stable.
func (r *PGRepository) ListByOrder(ctx context.Context, orderID string) ([]Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM chat_messages
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, messageColumns)

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("chat: list: %w", err)
	}
	defer rows.Close()

	list := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: scan: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate: %w", err)
	}
	return list, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	return m, row.Scan(
		&m.ID,
		&m.OrderID,
		&m.SenderID,
		&m.Text,
		&m.CreatedAt,
	)
}
