package order

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakePool struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
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

type fakeRepo struct {
	current   Order
	getErr    error
	created   *Order
	approved  bool
	rejected  bool
	funded    bool
	allocated bool
	delivered bool
}

func (f *fakeRepo) Create(_ context.Context, _ pgx.Tx, o Order) (Order, error) {
	f.created = &o
	return o, nil
}

func (f *fakeRepo) Get(context.Context, string) (Order, error) {
	if f.getErr != nil {
		return Order{}, f.getErr
	}
	return f.current, nil
}

func (f *fakeRepo) GetForUpdate(context.Context, pgx.Tx, string) (Order, error) {
	if f.getErr != nil {
		return Order{}, f.getErr
	}
	return f.current, nil
}

func (f *fakeRepo) ListByStatus(context.Context, Status) ([]Order, error) {
	return []Order{f.current}, nil
}

func (f *fakeRepo) ListAll(context.Context) ([]Order, error) {
	return []Order{f.current}, nil
}

func (f *fakeRepo) MarkApproved(_ context.Context, _ pgx.Tx, _, contractorID, adminID string) (Order, error) {
	f.approved = true
	o := f.current
	o.Status = StatusApproved
	o.ContractorID = &contractorID
	o.AdminID = &adminID
	return o, nil
}

func (f *fakeRepo) MarkRejected(context.Context, pgx.Tx, string) (Order, error) {
	f.rejected = true
	o := f.current
	o.Status = StatusRejected
	return o, nil
}

func (f *fakeRepo) MarkFunded(_ context.Context, _ pgx.Tx, _, investorID string, amount float64) (Order, error) {
	f.funded = true
	o := f.current
	o.Status = StatusFunded
	o.FundedBy = &investorID
	o.FundedAmount = &amount
	return o, nil
}

func (f *fakeRepo) MarkAllocated(context.Context, pgx.Tx, string) (Order, error) {
	f.allocated = true
	o := f.current
	o.Status = StatusAllocated
	return o, nil
}

func (f *fakeRepo) MarkDelivered(context.Context, pgx.Tx, string) (Order, error) {
	f.delivered = true
	o := f.current
	o.Status = StatusDelivered
	o.RevenueDistributed = true
	return o, nil
}
