package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	relayBatchSize   = 25
	relayMaxAttempts = 5
)

// Publisher delivers an outbox message downstream. A delivery error leaves
// the message pending for the next pass.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// LogPublisher writes outbox messages to the structured log; the default
// downstream until a real broker is attached.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.Logger.Info("outbox message",
		zap.String("topic", topic),
		zap.ByteString("payload", payload),
	)
	return nil
}

// Relay drains pending outbox rows in batches, competing safely with other
// relay instances via SKIP LOCKED.
type Relay struct {
	pool      *pgxpool.Pool
	logger    *zap.Logger
	publisher Publisher
	interval  time.Duration
}

// NewRelay wires the outbox relay.
func NewRelay(pool *pgxpool.Pool, logger *zap.Logger, publisher Publisher, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if publisher == nil {
		publisher = LogPublisher{Logger: logger}
	}
	return &Relay{pool: pool, logger: logger, publisher: publisher, interval: interval}
}

// Run drains the outbox on the configured interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = r.interval

	for {
		n, err := r.DrainOnce(ctx)
		wait := r.interval
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("outbox drain failed", zap.Error(err))
			wait = backoffCfg.NextBackOff()
			if wait == backoff.Stop {
				wait = r.interval
			}
		case n > 0:
			backoffCfg.Reset()
			// More work may be waiting; go straight back in.
			continue
		default:
			backoffCfg.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// DrainOnce processes up to one batch of pending messages and reports how
// many were handled. Messages exceeding the attempt budget are parked as
// dead rather than retried forever.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectSQL = `
		SELECT id::text, topic, payload, attempts
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, selectSQL, relayBatchSize)
	if err != nil {
		return 0, fmt.Errorf("reconcile: select outbox batch: %w", err)
	}

	type pending struct {
		id       string
		topic    string
		payload  []byte
		attempts int
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.topic, &p.payload, &p.attempts); err != nil {
			rows.Close()
			return 0, fmt.Errorf("reconcile: scan outbox row: %w", err)
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("reconcile: iterate outbox batch: %w", err)
	}

	for _, p := range batch {
		if err := r.publisher.Publish(ctx, p.topic, p.payload); err != nil {
			status := "pending"
			if p.attempts+1 >= relayMaxAttempts {
				status = "dead"
				r.logger.Warn("outbox message parked as dead",
					zap.String("id", p.id),
					zap.String("topic", p.topic),
				)
			}
			if _, err := tx.Exec(ctx,
				`UPDATE outbox SET attempts = attempts + 1, status = $2 WHERE id = $1`,
				p.id, status,
			); err != nil {
				return 0, fmt.Errorf("reconcile: record outbox failure: %w", err)
			}
			continue
		}

		if _, err := tx.Exec(ctx,
			`UPDATE outbox SET status = 'processed', attempts = attempts + 1 WHERE id = $1`,
			p.id,
		); err != nil {
			return 0, fmt.Errorf("reconcile: mark outbox processed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("reconcile: commit outbox batch: %w", err)
	}

	return len(batch), nil
}
