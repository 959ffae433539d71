package test

import (
	"context"
	"testing"
	"time"

	"orderflow/reconcile"
	"orderflow/test/infra"

	"go.uber.org/zap"
)

func seedUser(ctx context.Context, t *testing.T, h *infra.Harness, email, role string) string {
	t.Helper()
	var id string
	err := h.Pool().QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, kyc_verified)
		VALUES ($1, 'x', $2, TRUE)
		RETURNING id::text
	`, email, role).Scan(&id)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return id
}

func TestSweepRepairsMissingRevenue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	h, err := infra.NewHarness(ctx)
	if err != nil {
		t.Fatalf("start harness: %v", err)
	}
	defer h.Close(ctx)

	brokerID := seedUser(ctx, t, h, "broker@example.com", "broker")
	contractorID := seedUser(ctx, t, h, "contractor@example.com", "contractor")
	investorID := seedUser(ctx, t, h, "investor@example.com", "investor")
	adminID := seedUser(ctx, t, h, "admin@example.com", "admin")

	// A delivered order whose revenue insert was lost: the exact partial
	// state the sweep is built to repair.
	var orderID string
	err = h.Pool().QueryRow(ctx, `
		INSERT INTO orders (broker_id, contractor_email, description, status,
			contractor_id, admin_id, funded_by, funded_amount, revenue_distributed)
		VALUES ($1, 'contractor@example.com', 'steel', 'delivered', $2, $3, $4, 200, TRUE)
		RETURNING id::text
	`, brokerID, contractorID, adminID, investorID).Scan(&orderID)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if _, err := h.Pool().Exec(ctx, `
		INSERT INTO bids (order_id, investor_id, bid_amount, status)
		VALUES ($1, $2, 200, 'won')
	`, orderID, investorID); err != nil {
		t.Fatalf("seed winning bid: %v", err)
	}

	rec := reconcile.NewReconciler(h.Pool(), zap.NewNop(), time.Minute)

	report, err := rec.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.RepairedRevenues) != 1 || report.RepairedRevenues[0] != orderID {
		t.Fatalf("expected repair for %s, got %+v", orderID, report)
	}

	var contractorShare, investorShare float64
	err = h.Pool().QueryRow(ctx, `
		SELECT contractor_share, investor_share FROM revenues WHERE order_id = $1
	`, orderID).Scan(&contractorShare, &investorShare)
	if err != nil {
		t.Fatalf("read repaired revenue: %v", err)
	}
	if contractorShare != 40 || investorShare != 80 {
		t.Fatalf("unexpected repaired shares %v/%v", contractorShare, investorShare)
	}

	// The sweep is idempotent: a second pass finds nothing.
	report, err = rec.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("expected clean second sweep, got %+v", report)
	}
}

func TestSweepFlagsFundedWithoutWinner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	h, err := infra.NewHarness(ctx)
	if err != nil {
		t.Fatalf("start harness: %v", err)
	}
	defer h.Close(ctx)

	brokerID := seedUser(ctx, t, h, "broker@example.com", "broker")
	investorID := seedUser(ctx, t, h, "investor@example.com", "investor")

	var orderID string
	err = h.Pool().QueryRow(ctx, `
		INSERT INTO orders (broker_id, contractor_email, description, status, funded_by, funded_amount)
		VALUES ($1, 'contractor@example.com', 'steel', 'funded', $2, 100)
		RETURNING id::text
	`, brokerID, investorID).Scan(&orderID)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	rec := reconcile.NewReconciler(h.Pool(), zap.NewNop(), time.Minute)
	report, err := rec.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.FundedWithoutWinner) != 1 || report.FundedWithoutWinner[0] != orderID {
		t.Fatalf("expected flag for %s, got %+v", orderID, report)
	}

	// The flag lands in the outbox and the relay drains it.
	relay := reconcile.NewRelay(h.Pool(), zap.NewNop(), nil, time.Second)
	n, err := relay.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected at least one outbox message")
	}

	var pendingLeft int
	if err := h.Pool().QueryRow(ctx,
		`SELECT count(*) FROM outbox WHERE status = 'pending'`,
	).Scan(&pendingLeft); err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pendingLeft != 0 {
		t.Fatalf("expected outbox drained, got %d pending", pendingLeft)
	}
}
