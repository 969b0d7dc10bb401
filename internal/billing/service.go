package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dependable-calls/dce/internal/shared"
)

var (
	// ErrInvalidStatus indicates a status change not allowed from the current state.
	ErrInvalidStatus = errors.New("invalid status change")
	// ErrForbidden indicates an operation on a record the actor does not own.
	ErrForbidden = errors.New("billing record access denied")
	// ErrProviderRefRequired indicates a processing hand-off without a provider reference.
	ErrProviderRefRequired = errors.New("provider_ref required to begin processing")
)

// Actor is the authenticated principal performing a billing operation.
// SupplierID and BuyerID are the profile rows owned by the user, zero when
// the user has no profile of that kind.
type Actor struct {
	UserID     int64
	Role       string
	SupplierID int64
	BuyerID    int64
}

func (a Actor) admin() bool { return a.Role == "admin" }

// Service implements billing business logic.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a billing service.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// ResolveActor builds the acting principal for a session user, resolving the
// profile row the role implies. A supplier or buyer without a matching
// profile cannot touch billing records.
func (s *Service) ResolveActor(ctx context.Context, userID int64, role string) (Actor, error) {
	actor := Actor{UserID: userID, Role: role}
	switch role {
	case "supplier":
		id, err := s.repo.SupplierIDForUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Actor{}, fmt.Errorf("%w: no supplier profile for user %d", ErrForbidden, userID)
			}
			return Actor{}, fmt.Errorf("resolve supplier profile: %w", err)
		}
		actor.SupplierID = id
	case "buyer":
		id, err := s.repo.BuyerIDForUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Actor{}, fmt.Errorf("%w: no buyer profile for user %d", ErrForbidden, userID)
			}
			return Actor{}, fmt.Errorf("resolve buyer profile: %w", err)
		}
		actor.BuyerID = id
	}
	return actor, nil
}

// CreateInvoice creates a draft invoice with a generated sequential number.
func (s *Service) CreateInvoice(ctx context.Context, actorID int64, input InvoiceInput) (*Invoice, error) {
	year := s.now().Year()
	seq, err := s.repo.NextInvoiceSeq(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("next invoice seq: %w", err)
	}
	number := fmt.Sprintf("INV-%d-%05d", year, seq)
	dueDays := input.DueDays
	if dueDays == 0 {
		dueDays = 14
	}
	dueAt := s.now().AddDate(0, 0, dueDays)

	inv, err := s.repo.CreateInvoice(ctx, input, number, dueAt)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.create", "invoice", inv.ID, map[string]any{
		"number": inv.Number,
		"total":  inv.Total,
	})
	return inv, nil
}

// FinalizeInvoice moves a draft invoice to open so payment collection can start.
func (s *Service) FinalizeInvoice(ctx context.Context, actorID, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, ErrInvalidStatus
	}
	if err := s.repo.SetInvoiceStatus(ctx, id, InvoiceOpen); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.finalize", "invoice", id, nil)
	return s.repo.GetInvoice(ctx, id)
}

// VoidInvoice cancels an invoice that has not been paid.
func (s *Service) VoidInvoice(ctx context.Context, actorID, id int64) error {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status == InvoicePaid {
		return ErrInvalidStatus
	}
	if err := s.repo.SetInvoiceStatus(ctx, id, InvoiceVoid); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice.void", "invoice", id, nil)
	return nil
}

// GetInvoice returns one invoice. Buyers only see their own.
func (s *Service) GetInvoice(ctx context.Context, actor Actor, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.admin() && inv.BuyerID != actor.BuyerID {
		return nil, fmt.Errorf("%w: invoice %d", ErrForbidden, id)
	}
	return inv, nil
}

// ListInvoices returns invoices, optionally filtered by buyer and status.
// Non-admins are pinned to their own buyer profile regardless of the filter.
func (s *Service) ListInvoices(ctx context.Context, actor Actor, buyerID *int64, status *string) ([]Invoice, error) {
	if !actor.admin() {
		own := actor.BuyerID
		buyerID = &own
	}
	return s.repo.ListInvoices(ctx, buyerID, status)
}

// RequestPayout settles all unsettled billable calls of a supplier into one
// pending payout. Suppliers always settle their own balance; admins name the
// supplier. Returns ErrNothingToSettle when the balance is zero.
func (s *Service) RequestPayout(ctx context.Context, actor Actor, supplierID int64) (*Payout, error) {
	if !actor.admin() {
		supplierID = actor.SupplierID
	}
	if supplierID <= 0 {
		return nil, fmt.Errorf("%w: no supplier to settle", ErrForbidden)
	}
	number := fmt.Sprintf("PO-%d-%d", s.now().Year(), s.now().UnixMilli())
	payout, err := s.repo.CreatePayout(ctx, supplierID, number)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.UserID, "payout.request", "payout", payout.ID, map[string]any{
		"amount": payout.Amount,
	})
	s.logger.Info("payout requested",
		slog.Int64("payout_id", payout.ID),
		slog.Int64("supplier_id", supplierID),
		slog.Float64("amount", payout.Amount),
	)
	return payout, nil
}

// GetPayout returns one payout. Suppliers only see their own.
func (s *Service) GetPayout(ctx context.Context, actor Actor, id int64) (*Payout, error) {
	payout, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.admin() && payout.SupplierID != actor.SupplierID {
		return nil, fmt.Errorf("%w: payout %d", ErrForbidden, id)
	}
	return payout, nil
}

// ListPayouts returns payouts, optionally filtered by supplier and status.
// Non-admins are pinned to their own supplier profile regardless of the filter.
func (s *Service) ListPayouts(ctx context.Context, actor Actor, supplierID *int64, status *string) ([]Payout, error) {
	if !actor.admin() {
		own := actor.SupplierID
		supplierID = &own
	}
	return s.repo.ListPayouts(ctx, supplierID, status)
}

// CancelPayout cancels a payout still pending. Payouts already handed to the
// provider cannot be canceled here.
func (s *Service) CancelPayout(ctx context.Context, actor Actor, id int64) error {
	payout, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return err
	}
	if !actor.admin() && payout.SupplierID != actor.SupplierID {
		return fmt.Errorf("%w: payout %d", ErrForbidden, id)
	}
	if payout.Status != PayoutPending {
		return ErrInvalidStatus
	}
	if err := s.repo.SetPayoutStatus(ctx, id, PayoutCanceled, nil); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.UserID, "payout.cancel", "payout", id, nil)
	return nil
}

// UpdatePayoutStatus drives the provider-facing side of the payout
// lifecycle: pending to processing once handed to the payment provider, then
// processing to paid or failed. Failed is also reachable straight from
// pending when the hand-off never happens.
func (s *Service) UpdatePayoutStatus(ctx context.Context, actorID, id int64, input PayoutStatusInput) (*Payout, error) {
	payout, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	switch PayoutStatus(input.Status) {
	case PayoutProcessing:
		if payout.Status != PayoutPending {
			return nil, ErrInvalidStatus
		}
		if input.ProviderRef == "" {
			return nil, ErrProviderRefRequired
		}
		if err := s.repo.BeginPayoutProcessing(ctx, id, input.ProviderRef); err != nil {
			return nil, err
		}
	case PayoutPaid:
		if payout.Status != PayoutProcessing {
			return nil, ErrInvalidStatus
		}
		if err := s.repo.SetPayoutStatus(ctx, id, PayoutPaid, nil); err != nil {
			return nil, err
		}
	case PayoutFailed:
		if payout.Status != PayoutProcessing && payout.Status != PayoutPending {
			return nil, ErrInvalidStatus
		}
		var reason *string
		if input.FailureReason != "" {
			reason = &input.FailureReason
		}
		if err := s.repo.SetPayoutStatus(ctx, id, PayoutFailed, reason); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidStatus
	}

	s.recordAudit(ctx, actorID, "payout.status", "payout", id, map[string]any{
		"status": input.Status,
	})
	return s.repo.GetPayout(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

// ReconcileStalePayouts fails payouts stuck in processing beyond the cutoff.
// Called from the scheduled reconcile job.
func (s *Service) ReconcileStalePayouts(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.repo.FailStalePayouts(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	for _, p := range stale {
		s.logger.Warn("payout failed by reconciler",
			slog.Int64("payout_id", p.ID),
			slog.String("number", p.Number),
		)
	}
	return len(stale), nil
}
