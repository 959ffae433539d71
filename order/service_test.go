package order

import (
	"context"
	"testing"

	"orderflow/auth"
	"orderflow/fault"
)

func broker(kyc bool) auth.Actor {
	return auth.Actor{UserID: "broker-1", Role: auth.RoleBroker, KYCVerified: kyc}
}

func TestCreate_RequiresBrokerRole(t *testing.T) {
	pool := &fakePool{}
	svc := NewService(pool, &fakeRepo{})

	actor := auth.Actor{UserID: "u1", Role: auth.RoleInvestor, KYCVerified: true}
	_, err := svc.Create(context.Background(), actor, CreateParams{
		ContractorEmail: "c@example.com",
		Description:     "steel beams",
	})
	if !fault.IsKind(err, fault.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction before validation passes")
	}
}

func TestCreate_RequiresKYC(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{})

	_, err := svc.Create(context.Background(), broker(false), CreateParams{
		ContractorEmail: "c@example.com",
		Description:     "steel beams",
	})
	if !fault.IsKind(err, fault.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCreate_RejectsBlankFields(t *testing.T) {
	pool := &fakePool{}
	svc := NewService(pool, &fakeRepo{})

	cases := []CreateParams{
		{ContractorEmail: "  ", Description: "steel beams"},
		{ContractorEmail: "c@example.com", Description: ""},
	}
	for _, params := range cases {
		if _, err := svc.Create(context.Background(), broker(true), params); !fault.IsKind(err, fault.KindValidation) {
			t.Errorf("params %+v: expected validation error, got %v", params, err)
		}
	}
	if pool.tx != nil {
		t.Errorf("expected no writes on invalid input")
	}
}

func TestCreate_Success(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	svc := NewService(pool, repo).WithIDGenerator(func() string { return "order-fixed" })

	created, err := svc.Create(context.Background(), broker(true), CreateParams{
		ContractorEmail: "c@example.com",
		Description:     "steel beams",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if created.ID != "order-fixed" {
		t.Errorf("expected generated id, got %q", created.ID)
	}
	if created.Status != StatusPending {
		t.Errorf("expected pending status, got %s", created.Status)
	}
	if repo.created == nil || repo.created.BrokerID != "broker-1" {
		t.Errorf("expected broker stamped on the created order")
	}
	if pool.tx == nil || !pool.tx.committed {
		t.Fatalf("expected transaction commit")
	}
	// Timeline event plus outbox message ride the same transaction.
	if len(pool.tx.execs) != 2 {
		t.Errorf("expected 2 event writes, got %d", len(pool.tx.execs))
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{getErr: ErrNotFound})

	_, err := svc.Get(context.Background(), "missing")
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByStatus_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{})

	if _, err := svc.ListByStatus(context.Background(), "shipped"); !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
