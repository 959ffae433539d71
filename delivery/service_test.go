package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"orderflow/auth"
	"orderflow/fault"
	"orderflow/order"
	"orderflow/revenue"
)

func client() auth.Actor {
	return auth.Actor{UserID: "client-1", Role: auth.RoleClient, KYCVerified: true}
}

func allocatedOrder() order.Order {
	contractorID := "contractor-1"
	adminID := "admin-1"
	fundedBy := "investor-1"
	amount := 150.0
	return order.Order{
		ID:           "o1",
		BrokerID:     "broker-1",
		Status:       order.StatusAllocated,
		ContractorID: &contractorID,
		AdminID:      &adminID,
		FundedBy:     &fundedBy,
		FundedAmount: &amount,
	}
}

func TestAllocate_DelegatesToTransition(t *testing.T) {
	transitions := &fakeTransitions{}
	svc := NewService(&fakePool{}, &fakeOrders{}, &fakeRevenues{}, transitions)

	actor := auth.Actor{UserID: "agent-1", Role: auth.RoleSourcingAgent, KYCVerified: true}
	if _, err := svc.Allocate(context.Background(), actor, "o1"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if transitions.target != order.StatusAllocated {
		t.Errorf("expected allocated target, got %s", transitions.target)
	}
}

func TestConfirmDelivery_RequiresAllocated(t *testing.T) {
	o := allocatedOrder()
	o.Status = order.StatusFunded
	orders := &fakeOrders{current: o}
	svc := NewService(&fakePool{}, orders, &fakeRevenues{}, &fakeTransitions{})

	_, _, err := svc.ConfirmDelivery(context.Background(), client(), "o1")
	if !fault.IsKind(err, fault.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestConfirmDelivery_RejectsRepeat(t *testing.T) {
	o := allocatedOrder()
	o.RevenueDistributed = true
	orders := &fakeOrders{current: o}
	revenues := &fakeRevenues{}
	svc := NewService(&fakePool{}, orders, revenues, &fakeTransitions{})

	_, _, err := svc.ConfirmDelivery(context.Background(), client(), "o1")
	if !fault.IsKind(err, fault.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if revenues.inserted != nil {
		t.Errorf("expected no second revenue record")
	}
}

func TestConfirmDelivery_RoleCheck(t *testing.T) {
	orders := &fakeOrders{current: allocatedOrder()}
	svc := NewService(&fakePool{}, orders, &fakeRevenues{}, &fakeTransitions{})

	actor := auth.Actor{UserID: "agent-1", Role: auth.RoleSourcingAgent, KYCVerified: true}
	_, _, err := svc.ConfirmDelivery(context.Background(), actor, "o1")
	if !fault.IsKind(err, fault.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestConfirmDelivery_MissingFundingFields(t *testing.T) {
	o := allocatedOrder()
	o.FundedAmount = nil
	orders := &fakeOrders{current: o}
	svc := NewService(&fakePool{}, orders, &fakeRevenues{}, &fakeTransitions{})

	_, _, err := svc.ConfirmDelivery(context.Background(), client(), "o1")
	if !fault.IsKind(err, fault.KindReconciliation) {
		t.Fatalf("expected reconciliation fault, got %v", err)
	}
}

func TestConfirmDelivery_Success(t *testing.T) {
	orders := &fakeOrders{current: allocatedOrder()}
	revenues := &fakeRevenues{}
	pool := &fakePool{}
	svc := NewService(pool, orders, revenues, &fakeTransitions{})

	delivered, rec, err := svc.ConfirmDelivery(context.Background(), client(), "o1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if delivered.Status != order.StatusDelivered || !delivered.RevenueDistributed {
		t.Errorf("unexpected order state %+v", delivered)
	}
	// 150 splits 30/15/60/45.
	if rec.ContractorShare != 30 || rec.BrokerShare != 15 || rec.InvestorShare != 60 || rec.AdminShare != 45 {
		t.Errorf("unexpected split %+v", rec)
	}
	if !pool.tx.committed {
		t.Fatalf("expected the status change and the revenue insert to commit together")
	}
	if len(pool.tx.execs) != 2 {
		t.Errorf("expected timeline and outbox writes, got %d", len(pool.tx.execs))
	}
}

func TestConfirmDelivery_DuplicateInsertSurfacesReconciliation(t *testing.T) {
	orders := &fakeOrders{current: allocatedOrder()}
	revenues := &fakeRevenues{insertErr: revenue.ErrAlreadyDistributed}
	pool := &fakePool{}
	svc := NewService(pool, orders, revenues, &fakeTransitions{})

	_, _, err := svc.ConfirmDelivery(context.Background(), client(), "o1")
	if !fault.IsKind(err, fault.KindReconciliation) {
		t.Fatalf("expected reconciliation fault, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback on duplicate revenue")
	}
}

type fakeTransitions struct {
	target order.Status
}

func (f *fakeTransitions) Transition(_ context.Context, _ auth.Actor, _ string, target order.Status) (order.Order, error) {
	f.target = target
	return order.Order{Status: target}, nil
}

type fakeRevenues struct {
	inserted  *revenue.Record
	insertErr error
}

func (f *fakeRevenues) Insert(_ context.Context, _ pgx.Tx, rec revenue.Record) (revenue.Record, error) {
	if f.insertErr != nil {
		return revenue.Record{}, f.insertErr
	}
	f.inserted = &rec
	return rec, nil
}

func (f *fakeRevenues) GetByOrder(context.Context, string) (revenue.Record, error) {
	return revenue.Record{}, revenue.ErrNotFound
}

func (f *fakeRevenues) List(context.Context) ([]revenue.Record, error) {
	return nil, nil
}

type fakeOrders struct {
	current order.Order
	getErr  error
}

func (f *fakeOrders) Create(_ context.Context, _ pgx.Tx, o order.Order) (order.Order, error) {
	return o, nil
}

func (f *fakeOrders) Get(context.Context, string) (order.Order, error) {
	return f.current, f.getErr
}

func (f *fakeOrders) GetForUpdate(context.Context, pgx.Tx, string) (order.Order, error) {
	if f.getErr != nil {
		return order.Order{}, f.getErr
	}
	return f.current, nil
}

func (f *fakeOrders) ListByStatus(context.Context, order.Status) ([]order.Order, error) {
	return nil, nil
}

func (f *fakeOrders) ListAll(context.Context) ([]order.Order, error) {
	return nil, nil
}

func (f *fakeOrders) MarkApproved(context.Context, pgx.Tx, string, string, string) (order.Order, error) {
	panic("not implemented")
}

func (f *fakeOrders) MarkRejected(context.Context, pgx.Tx, string) (order.Order, error) {
	panic("not implemented")
}

func (f *fakeOrders) MarkFunded(context.Context, pgx.Tx, string, string, float64) (order.Order, error) {
	panic("not implemented")
}

func (f *fakeOrders) MarkAllocated(context.Context, pgx.Tx, string) (order.Order, error) {
	panic("not implemented")
}

func (f *fakeOrders) MarkDelivered(context.Context, pgx.Tx, string) (order.Order, error) {
	o := f.current
	o.Status = order.StatusDelivered
	o.RevenueDistributed = true
	return o, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
	execs     []string
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
