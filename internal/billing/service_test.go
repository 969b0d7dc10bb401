package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	RepositoryPort
	invoices  map[int64]*Invoice
	payouts   map[int64]*Payout
	suppliers map[int64]int64
	buyers    map[int64]int64
	nextID    int64
	seq       int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		invoices:  map[int64]*Invoice{},
		payouts:   map[int64]*Payout{},
		suppliers: map[int64]int64{2: 2, 3: 3},
		buyers:    map[int64]int64{7: 7, 8: 8},
		nextID:    1,
		seq:       1,
	}
}

func (s *stubRepo) NextInvoiceSeq(_ context.Context, _ int) (int, error) {
	return s.seq, nil
}

func (s *stubRepo) CreateInvoice(_ context.Context, input InvoiceInput, number string, dueAt time.Time) (*Invoice, error) {
	inv := &Invoice{
		ID:          s.nextID,
		Number:      number,
		BuyerID:     input.BuyerID,
		Currency:    input.Currency,
		Total:       input.Total,
		Status:      InvoiceDraft,
		ProviderRef: input.ProviderRef,
		DueAt:       dueAt,
	}
	s.invoices[inv.ID] = inv
	s.nextID++
	s.seq++
	return inv, nil
}

func (s *stubRepo) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (s *stubRepo) ListInvoices(_ context.Context, buyerID *int64, status *string) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range s.invoices {
		if buyerID != nil && inv.BuyerID != *buyerID {
			continue
		}
		if status != nil && string(inv.Status) != *status {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (s *stubRepo) SetInvoiceStatus(_ context.Context, id int64, status InvoiceStatus) error {
	inv, ok := s.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	return nil
}

func (s *stubRepo) CreatePayout(_ context.Context, supplierID int64, number string) (*Payout, error) {
	if supplierID == 404 {
		return nil, ErrNothingToSettle
	}
	p := &Payout{
		ID:          s.nextID,
		Number:      number,
		SupplierID:  supplierID,
		Amount:      125.50,
		Status:      PayoutPending,
		RequestedAt: time.Now(),
	}
	s.payouts[p.ID] = p
	s.nextID++
	return p, nil
}

func (s *stubRepo) GetPayout(_ context.Context, id int64) (*Payout, error) {
	p, ok := s.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *stubRepo) ListPayouts(_ context.Context, supplierID *int64, status *string) ([]Payout, error) {
	var out []Payout
	for _, p := range s.payouts {
		if supplierID != nil && p.SupplierID != *supplierID {
			continue
		}
		if status != nil && string(p.Status) != *status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubRepo) SetPayoutStatus(_ context.Context, id int64, status PayoutStatus, reason *string) error {
	p, ok := s.payouts[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	p.FailureReason = reason
	return nil
}

func (s *stubRepo) BeginPayoutProcessing(_ context.Context, id int64, providerRef string) error {
	p, ok := s.payouts[id]
	if !ok || p.Status != PayoutPending {
		return ErrNotFound
	}
	p.Status = PayoutProcessing
	p.ProviderRef = providerRef
	return nil
}

func (s *stubRepo) SupplierIDForUser(_ context.Context, userID int64) (int64, error) {
	id, ok := s.suppliers[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (s *stubRepo) BuyerIDForUser(_ context.Context, userID int64) (int64, error) {
	id, ok := s.buyers[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

var (
	adminActor    = Actor{UserID: 1, Role: "admin"}
	supplierTwo   = Actor{UserID: 2, Role: "supplier", SupplierID: 2}
	supplierThree = Actor{UserID: 3, Role: "supplier", SupplierID: 3}
	buyerSeven    = Actor{UserID: 7, Role: "buyer", BuyerID: 7}
)

func newTestService(repo RepositoryPort) *Service {
	svc := NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateInvoiceNumbering(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	first, err := svc.CreateInvoice(context.Background(), 1, InvoiceInput{BuyerID: 7, Currency: "usd", Total: 100})
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-00001", first.Number)
	assert.Equal(t, InvoiceDraft, first.Status)
	assert.Equal(t, time.Date(2026, 3, 29, 12, 0, 0, 0, time.UTC), first.DueAt)

	second, err := svc.CreateInvoice(context.Background(), 1, InvoiceInput{BuyerID: 7, Currency: "usd", Total: 50})
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-00002", second.Number)
}

func TestFinalizeInvoice(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	inv, err := svc.CreateInvoice(context.Background(), 1, InvoiceInput{BuyerID: 7, Currency: "usd", Total: 100})
	require.NoError(t, err)

	finalized, err := svc.FinalizeInvoice(context.Background(), 1, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceOpen, finalized.Status)

	_, err = svc.FinalizeInvoice(context.Background(), 1, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus, "only drafts can be finalized")
}

func TestVoidPaidInvoiceRejected(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	inv, err := svc.CreateInvoice(context.Background(), 1, InvoiceInput{BuyerID: 7, Currency: "usd", Total: 100})
	require.NoError(t, err)
	repo.invoices[inv.ID].Status = InvoicePaid

	assert.ErrorIs(t, svc.VoidInvoice(context.Background(), 1, inv.ID), ErrInvalidStatus)
}

func TestResolveActor(t *testing.T) {
	svc := newTestService(newStubRepo())

	actor, err := svc.ResolveActor(context.Background(), 2, "supplier")
	require.NoError(t, err)
	assert.Equal(t, int64(2), actor.SupplierID)

	actor, err = svc.ResolveActor(context.Background(), 7, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(7), actor.BuyerID)

	_, err = svc.ResolveActor(context.Background(), 99, "supplier")
	assert.ErrorIs(t, err, ErrForbidden, "supplier role without a supplier profile")
}

func TestGetInvoiceScopedToBuyer(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	inv, err := svc.CreateInvoice(context.Background(), 1, InvoiceInput{BuyerID: 8, Currency: "usd", Total: 100})
	require.NoError(t, err)

	_, err = svc.GetInvoice(context.Background(), buyerSeven, inv.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.GetInvoice(context.Background(), adminActor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
}

func TestListInvoicesScopedToBuyer(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	_, err := svc.CreateInvoice(context.Background(), 1, InvoiceInput{BuyerID: 7, Currency: "usd", Total: 100})
	require.NoError(t, err)
	_, err = svc.CreateInvoice(context.Background(), 1, InvoiceInput{BuyerID: 8, Currency: "usd", Total: 200})
	require.NoError(t, err)

	// A foreign buyer_id filter is overridden by the caller's own profile.
	other := int64(8)
	invoices, err := svc.ListInvoices(context.Background(), buyerSeven, &other, nil)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(7), invoices[0].BuyerID)

	invoices, err = svc.ListInvoices(context.Background(), adminActor, &other, nil)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(8), invoices[0].BuyerID)
}

func TestRequestPayout(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	payout, err := svc.RequestPayout(context.Background(), supplierTwo, 0)
	require.NoError(t, err)
	assert.Equal(t, PayoutPending, payout.Status)
	assert.InDelta(t, 125.50, payout.Amount, 0.001)
	assert.Contains(t, payout.Number, "PO-2026-")
}

func TestRequestPayoutPinnedToOwnSupplier(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	payout, err := svc.RequestPayout(context.Background(), supplierTwo, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), payout.SupplierID, "suppliers settle their own balance")

	payout, err = svc.RequestPayout(context.Background(), adminActor, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), payout.SupplierID)
}

func TestRequestPayoutEmptyBalance(t *testing.T) {
	svc := newTestService(newStubRepo())

	_, err := svc.RequestPayout(context.Background(), adminActor, 404)
	assert.ErrorIs(t, err, ErrNothingToSettle)
}

func TestCancelPayout(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	payout, err := svc.RequestPayout(context.Background(), supplierTwo, 0)
	require.NoError(t, err)

	require.NoError(t, svc.CancelPayout(context.Background(), supplierTwo, payout.ID))

	canceled, err := svc.GetPayout(context.Background(), supplierTwo, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, PayoutCanceled, canceled.Status)

	assert.ErrorIs(t, svc.CancelPayout(context.Background(), supplierTwo, payout.ID), ErrInvalidStatus,
		"a payout can only be canceled while pending")
}

func TestPayoutScopedToSupplier(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	payout, err := svc.RequestPayout(context.Background(), supplierTwo, 0)
	require.NoError(t, err)

	_, err = svc.GetPayout(context.Background(), supplierThree, payout.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, svc.CancelPayout(context.Background(), supplierThree, payout.ID), ErrForbidden)
	got, err := svc.GetPayout(context.Background(), supplierTwo, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, PayoutPending, got.Status, "status must not change")

	other := int64(2)
	payouts, err := svc.ListPayouts(context.Background(), supplierThree, &other, nil)
	require.NoError(t, err)
	assert.Empty(t, payouts, "a foreign supplier_id filter is overridden by the caller's own profile")
}

func TestPayoutStatusLifecycle(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	payout, err := svc.RequestPayout(context.Background(), supplierTwo, 0)
	require.NoError(t, err)

	processing, err := svc.UpdatePayoutStatus(context.Background(), 1, payout.ID, PayoutStatusInput{
		Status:      "processing",
		ProviderRef: "po_abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, PayoutProcessing, processing.Status)
	assert.Equal(t, "po_abc123", processing.ProviderRef)

	paid, err := svc.UpdatePayoutStatus(context.Background(), 1, payout.ID, PayoutStatusInput{Status: "paid"})
	require.NoError(t, err)
	assert.Equal(t, PayoutPaid, paid.Status)
}

func TestPayoutStatusFailedWithReason(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	payout, err := svc.RequestPayout(context.Background(), supplierTwo, 0)
	require.NoError(t, err)

	failed, err := svc.UpdatePayoutStatus(context.Background(), 1, payout.ID, PayoutStatusInput{
		Status:        "failed",
		FailureReason: "bank account closed",
	})
	require.NoError(t, err)
	assert.Equal(t, PayoutFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "bank account closed", *failed.FailureReason)
}

func TestPayoutStatusRejectsInvalid(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	payout, err := svc.RequestPayout(context.Background(), supplierTwo, 0)
	require.NoError(t, err)

	// Paid is only reachable through processing.
	_, err = svc.UpdatePayoutStatus(context.Background(), 1, payout.ID, PayoutStatusInput{Status: "paid"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	// The provider hand-off needs a reference for webhook matching.
	_, err = svc.UpdatePayoutStatus(context.Background(), 1, payout.ID, PayoutStatusInput{Status: "processing"})
	assert.ErrorIs(t, err, ErrProviderRefRequired)

	_, err = svc.UpdatePayoutStatus(context.Background(), 1, payout.ID, PayoutStatusInput{
		Status:      "processing",
		ProviderRef: "po_abc123",
	})
	require.NoError(t, err)
	_, err = svc.UpdatePayoutStatus(context.Background(), 1, payout.ID, PayoutStatusInput{
		Status:      "processing",
		ProviderRef: "po_other",
	})
	assert.ErrorIs(t, err, ErrInvalidStatus, "a payout is handed to the provider once")
}
