package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"winequiz/store"
)

type fakeCustomers struct {
	calls []CustomerParams
	err   error
}

func (f *fakeCustomers) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return "", f.err
	}
	return "cus_test123", nil
}

func newTestService(t *testing.T, customers Customers) (*Service, *store.SQLiteStore, string) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "billing.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	profile := &store.Profile{Email: "buyer@example.com", Alias: "buyer"}
	if err := db.CreateProfile(context.Background(), profile); err != nil {
		t.Fatal(err)
	}
	return NewService(db, customers, slog.New(slog.NewTextHandler(io.Discard, nil))), db, profile.ID
}

func TestEnsureCustomer(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCustomers{}
	svc, db, userID := newTestService(t, fake)

	res, err := svc.EnsureCustomer(ctx, userID, "", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCreated || res.StripeCustomerID != "cus_test123" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fake.calls) != 1 || fake.calls[0].Name != "buyer" || fake.calls[0].Email != "buyer@example.com" || fake.calls[0].Locale != "fr" {
		t.Fatalf("unexpected calls %+v", fake.calls)
	}

	profile, _ := db.GetProfileByID(ctx, userID)
	if profile.StripeCustomerID != "cus_test123" {
		t.Fatalf("customer id not saved: %+v", profile)
	}

	again, err := svc.EnsureCustomer(ctx, userID, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != StatusExists || len(fake.calls) != 1 {
		t.Fatalf("second call should not create: %+v, %d calls", again, len(fake.calls))
	}
}

func TestEnsureCustomerErrors(t *testing.T) {
	ctx := context.Background()
	upstream := &UpstreamError{Err: errors.New("card_declined")}
	svc, db, userID := newTestService(t, &fakeCustomers{err: upstream})

	if _, err := svc.EnsureCustomer(ctx, "missing", "", ""); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}

	_, err := svc.EnsureCustomer(ctx, userID, "", "")
	var got *UpstreamError
	if !errors.As(err, &got) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	profile, _ := db.GetProfileByID(ctx, userID)
	if profile.StripeCustomerID != "" {
		t.Fatal("failed creation must not save a customer id")
	}
}

func TestStripeCustomersUnconfigured(t *testing.T) {
	if _, err := NewStripeCustomers("").CreateCustomer(context.Background(), CustomerParams{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
