// Package reconcile runs the periodic sweep that detects partially completed
// multi-step operations, plus the relay that drains the transactional outbox.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"orderflow/event"
	"orderflow/revenue"
)

const shareTolerance = 1e-6

// Report summarises one sweep pass.
type Report struct {
	FundedWithoutWinner []string
	RepairedRevenues    []string
	MismatchedShares    []string
}

// Clean reports whether the sweep found nothing to repair or flag.
func (r Report) Clean() bool {
	return len(r.FundedWithoutWinner) == 0 &&
		len(r.RepairedRevenues) == 0 &&
		len(r.MismatchedShares) == 0
}

// Reconciler periodically audits the order/bid/revenue linkage.
type Reconciler struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	interval time.Duration
}

// NewReconciler wires the sweep loop.
func NewReconciler(pool *pgxpool.Pool, logger *zap.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{pool: pool, logger: logger, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled. Failed
// sweeps back off exponentially instead of hammering the database.
func (r *Reconciler) Run(ctx context.Context) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = r.interval

	for {
		report, err := r.Sweep(ctx)
		wait := r.interval
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("reconciliation sweep failed", zap.Error(err))
			wait = backoffCfg.NextBackOff()
			if wait == backoff.Stop {
				wait = r.interval
			}
		} else {
			backoffCfg.Reset()
			if !report.Clean() {
				r.logger.Warn("reconciliation findings",
					zap.Strings("funded_without_winner", report.FundedWithoutWinner),
					zap.Strings("repaired_revenues", report.RepairedRevenues),
					zap.Strings("mismatched_shares", report.MismatchedShares),
				)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Sweep runs all audit queries once. Orders flagged as funded without a
// winning bid and revenue records whose shares do not sum to the funded
// amount are surfaced; delivered orders missing their revenue record are
// repaired in place.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	var report Report

	funded, err := r.fundedWithoutWinner(ctx)
	if err != nil {
		return Report{}, err
	}
	report.FundedWithoutWinner = funded
	for _, orderID := range funded {
		if err := r.flag(ctx, orderID, "funded order has no winning bid"); err != nil {
			return Report{}, err
		}
	}

	repaired, err := r.repairMissingRevenues(ctx)
	if err != nil {
		return Report{}, err
	}
	report.RepairedRevenues = repaired

	mismatched, err := r.mismatchedShares(ctx)
	if err != nil {
		return Report{}, err
	}
	report.MismatchedShares = mismatched
	for _, orderID := range mismatched {
		if err := r.flag(ctx, orderID, "revenue shares do not sum to funded amount"); err != nil {
			return Report{}, err
		}
	}

	return report, nil
}

func (r *Reconciler) fundedWithoutWinner(ctx context.Context) ([]string, error) {
	const q = `
		SELECT o.id::text
		FROM orders o
		WHERE o.status IN ('funded','allocated','delivered')
		  AND NOT EXISTS (
			SELECT 1 FROM bids b WHERE b.order_id = o.id AND b.status = 'won'
		  )
	`
	return r.queryIDs(ctx, q)
}

func (r *Reconciler) mismatchedShares(ctx context.Context) ([]string, error) {
	const q = `
		SELECT r.order_id::text
		FROM revenues r
		JOIN orders o ON o.id = r.order_id
		WHERE o.funded_amount IS NOT NULL
		  AND abs(r.contractor_share + r.broker_share + r.investor_share + r.admin_share - o.funded_amount) > $1
	`
	return r.queryIDs(ctx, q, shareTolerance)
}

// repairMissingRevenues recomputes and inserts the revenue record for every
// order marked revenue_distributed without one. The insert is idempotent:
// the unique key on order_id absorbs a concurrent repair.
func (r *Reconciler) repairMissingRevenues(ctx context.Context) ([]string, error) {
	const q = `
		SELECT o.id::text, o.funded_amount, o.contractor_id::text, o.broker_id::text,
		       o.funded_by::text, o.admin_id::text
		FROM orders o
		WHERE o.revenue_distributed
		  AND o.funded_amount IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM revenues r WHERE r.order_id = o.id)
	`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("reconcile: query missing revenues: %w", err)
	}

	type missing struct {
		orderID      string
		amount       float64
		contractorID *string
		brokerID     *string
		investorID   *string
		adminID      *string
	}
	var targets []missing
	for rows.Next() {
		var m missing
		if err := rows.Scan(&m.orderID, &m.amount, &m.contractorID, &m.brokerID, &m.investorID, &m.adminID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("reconcile: scan missing revenue: %w", err)
		}
		targets = append(targets, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reconcile: iterate missing revenues: %w", err)
	}

	repaired := make([]string, 0, len(targets))
	for _, m := range targets {
		shares := revenue.ComputeShares(m.amount)

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("reconcile: begin repair tx: %w", err)
		}

		const insertSQL = `
			INSERT INTO revenues (order_id, contractor_id, broker_id, investor_id, admin_id,
				contractor_share, broker_share, investor_share, admin_share)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (order_id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, insertSQL,
			m.orderID, m.contractorID, m.brokerID, m.investorID, m.adminID,
			shares.Contractor, shares.Broker, shares.Investor, shares.Admin,
		); err != nil {
			tx.Rollback(ctx)
			return nil, fmt.Errorf("reconcile: repair revenue for %s: %w", m.orderID, err)
		}

		payload := map[string]any{
			"order_id": m.orderID,
			"reason":   "revenue record repaired by reconciliation",
		}
		if err := event.AppendTimeline(ctx, tx, m.orderID, event.TypeRevenueDistributed, "", payload); err != nil {
			tx.Rollback(ctx)
			return nil, err
		}
		if err := event.EnqueueOutbox(ctx, tx, event.TopicReconcileFlagged, payload); err != nil {
			tx.Rollback(ctx)
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("reconcile: commit repair: %w", err)
		}
		repaired = append(repaired, m.orderID)
	}

	return repaired, nil
}

func (r *Reconciler) flag(ctx context.Context, orderID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: begin flag tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payload := map[string]any{
		"order_id": orderID,
		"reason":   reason,
	}
	if err := event.EnqueueOutbox(ctx, tx, event.TopicReconcileFlagged, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reconcile: commit flag: %w", err)
	}
	return nil
}

func (r *Reconciler) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reconcile: query: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("reconcile: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reconcile: iterate: %w", err)
	}
	return ids, nil
}
