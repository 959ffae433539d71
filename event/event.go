// Package event writes the append-only timeline and the transactional outbox.
// Both writes always ride inside the caller's transaction so an order's state
// change, its business event, and its downstream notification commit or roll
// back together.
package event

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
)

// Timeline event types recorded by the workflow.
const (
	TypeOrderCreated       = "ORDER_CREATED"
	TypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	TypeBidPlaced          = "BID_PLACED"
	TypeBidWon             = "BID_WON"
	TypeRevenueDistributed = "REVENUE_DISTRIBUTED"
)

// Outbox topics published by the workflow.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicBidPlaced          = "bid.placed"
	TopicOrderFunded        = "order.funded"
	TopicOrderDelivered     = "order.delivered"
	TopicReconcileFlagged   = "reconcile.flagged"
)

// AppendTimeline records a business event for an order inside tx.
func AppendTimeline(ctx context.Context, tx pgx.Tx, orderID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal timeline payload: %w", err)
	}
	var actor any
	if actorID != "" {
		actor = actorID
	}
	const q = `
INSERT INTO timeline_events (order_id, type, payload, actor_id)
VALUES ($1, $2, $3::jsonb, $4::uuid)
`
	if _, err := tx.Exec(ctx, q, orderID, eventType, body, actor); err != nil {
		return fmt.Errorf("event: insert timeline event: %w", err)
	}
	return nil
}

// EnqueueOutbox stages a message for the outbox relay inside tx.
func EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("event: enqueue outbox: %w", err)
	}
	return nil
}
