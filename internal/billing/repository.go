package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dependable-calls/dce/internal/platform/db"
)

var (
	// ErrNotFound indicates a missing billing record.
	ErrNotFound = errors.New("billing record not found")
	// ErrNothingToSettle indicates a payout request with no unsettled calls.
	ErrNothingToSettle = errors.New("no unsettled billable calls")
)

// RepositoryPort defines data access methods for billing.
type RepositoryPort interface {
	CreateInvoice(ctx context.Context, input InvoiceInput, number string, dueAt time.Time) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, buyerID *int64, status *string) ([]Invoice, error)
	SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	NextInvoiceSeq(ctx context.Context, year int) (int, error)

	CreatePayout(ctx context.Context, supplierID int64, number string) (*Payout, error)
	GetPayout(ctx context.Context, id int64) (*Payout, error)
	ListPayouts(ctx context.Context, supplierID *int64, status *string) ([]Payout, error)
	SetPayoutStatus(ctx context.Context, id int64, status PayoutStatus, reason *string) error
	BeginPayoutProcessing(ctx context.Context, id int64, providerRef string) error
	FailStalePayouts(ctx context.Context, olderThan time.Duration) ([]Payout, error)

	// Profile lookups used to scope operations to the session user.
	SupplierIDForUser(ctx context.Context, userID int64) (int64, error)
	BuyerIDForUser(ctx context.Context, userID int64) (int64, error)

	// Webhook row updates keyed by the payment provider's object reference.
	MarkInvoicePaid(ctx context.Context, providerRef string, paidAt time.Time) error
	MarkInvoicePaymentFailed(ctx context.Context, providerRef string) error
	MarkInvoiceDisputed(ctx context.Context, providerRef, disputeRef, reason string) error
	MarkPayoutPaid(ctx context.Context, providerRef string, settledAt time.Time) error
	MarkPayoutFailed(ctx context.Context, providerRef, reason string) error
}

// PGRepository implements RepositoryPort using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const invoiceColumns = `id, number, buyer_id, currency, total, status, COALESCE(provider_ref, ''), due_at, paid_at, created_at, updated_at`

func (r *PGRepository) CreateInvoice(ctx context.Context, input InvoiceInput, number string, dueAt time.Time) (*Invoice, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO invoices (number, buyer_id, currency, total, status, provider_ref, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'draft', NULLIF($5, ''), $6, NOW(), NOW())
		RETURNING id`,
		number, input.BuyerID, input.Currency, input.Total, input.ProviderRef, dueAt,
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetInvoice(ctx, id)
}

func (r *PGRepository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1`, invoiceColumns), id)
	return scanInvoice(row)
}

func (r *PGRepository) ListInvoices(ctx context.Context, buyerID *int64, status *string) ([]Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices`, invoiceColumns)
	var conditions []string
	var args []interface{}
	argPos := 1
	if buyerID != nil {
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", argPos))
		args = append(args, *buyerID)
		argPos++
	}
	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *status)
		argPos++
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC LIMIT 200"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (r *PGRepository) SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) NextInvoiceSeq(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM invoices WHERE EXTRACT(YEAR FROM created_at) = $1`, year).Scan(&seq)
	return seq, err
}

const payoutColumns = `id, number, supplier_id, amount, status, COALESCE(provider_ref, ''), failure_reason, requested_at, settled_at, created_at, updated_at`

// CreatePayout aggregates the supplier's unsettled billable calls into a
// pending payout inside one transaction, marking the calls settled so a
// concurrent request cannot pay them twice.
func (r *PGRepository) CreatePayout(ctx context.Context, supplierID int64, number string) (*Payout, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var amount float64
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(payout_amount), 0)
			FROM calls
			WHERE supplier_id = $1 AND billable AND payout_id IS NULL`,
			supplierID,
		).Scan(&amount)
		if err != nil {
			return err
		}
		if amount <= 0 {
			return ErrNothingToSettle
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO payouts (number, supplier_id, amount, status, requested_at, created_at, updated_at)
			VALUES ($1, $2, $3, 'pending', NOW(), NOW(), NOW())
			RETURNING id`,
			number, supplierID, amount,
		).Scan(&id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE calls SET payout_id = $1
			WHERE supplier_id = $2 AND billable AND payout_id IS NULL`,
			id, supplierID,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.GetPayout(ctx, id)
}

func (r *PGRepository) GetPayout(ctx context.Context, id int64) (*Payout, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM payouts WHERE id = $1`, payoutColumns), id)
	return scanPayout(row)
}

func (r *PGRepository) ListPayouts(ctx context.Context, supplierID *int64, status *string) ([]Payout, error) {
	query := fmt.Sprintf(`SELECT %s FROM payouts`, payoutColumns)
	var conditions []string
	var args []interface{}
	argPos := 1
	if supplierID != nil {
		conditions = append(conditions, fmt.Sprintf("supplier_id = $%d", argPos))
		args = append(args, *supplierID)
		argPos++
	}
	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *status)
		argPos++
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY requested_at DESC LIMIT 200"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

func (r *PGRepository) SetPayoutStatus(ctx context.Context, id int64, status PayoutStatus, reason *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payouts
		SET status = $1,
		    failure_reason = $2,
		    settled_at = CASE WHEN $1 = 'paid' THEN NOW() ELSE settled_at END,
		    updated_at = NOW()
		WHERE id = $3`,
		status, reason, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BeginPayoutProcessing hands a pending payout to the payment provider. The
// status guard in the WHERE clause makes a double hand-off a no-op that
// surfaces as ErrNotFound.
func (r *PGRepository) BeginPayoutProcessing(ctx context.Context, id int64, providerRef string) error {
	return r.expectRow(ctx, `
		UPDATE payouts
		SET status = 'processing', provider_ref = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'`,
		providerRef, id,
	)
}

func (r *PGRepository) SupplierIDForUser(ctx context.Context, userID int64) (int64, error) {
	return r.profileID(ctx, `SELECT id FROM suppliers WHERE user_id = $1`, userID)
}

func (r *PGRepository) BuyerIDForUser(ctx context.Context, userID int64) (int64, error) {
	return r.profileID(ctx, `SELECT id FROM buyers WHERE user_id = $1`, userID)
}

func (r *PGRepository) profileID(ctx context.Context, query string, userID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, query, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *PGRepository) FailStalePayouts(ctx context.Context, olderThan time.Duration) ([]Payout, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		UPDATE payouts
		SET status = 'failed', failure_reason = 'stuck in processing', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
		RETURNING %s`, payoutColumns),
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

func (r *PGRepository) MarkInvoicePaid(ctx context.Context, providerRef string, paidAt time.Time) error {
	return r.expectRow(ctx, `UPDATE invoices SET status = 'paid', paid_at = $1, updated_at = NOW() WHERE provider_ref = $2`, paidAt, providerRef)
}

func (r *PGRepository) MarkInvoicePaymentFailed(ctx context.Context, providerRef string) error {
	return r.expectRow(ctx, `UPDATE invoices SET status = 'uncollectible', updated_at = NOW() WHERE provider_ref = $1 AND status IN ('open', 'draft')`, providerRef)
}

func (r *PGRepository) MarkInvoiceDisputed(ctx context.Context, providerRef, disputeRef, reason string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var invoiceID int64
		err := tx.QueryRow(ctx, `SELECT id FROM invoices WHERE provider_ref = $1`, providerRef).Scan(&invoiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO disputes (invoice_id, provider_ref, reason, created_at)
			VALUES ($1, $2, $3, NOW())`,
			invoiceID, disputeRef, reason,
		)
		return err
	})
}

func (r *PGRepository) MarkPayoutPaid(ctx context.Context, providerRef string, settledAt time.Time) error {
	return r.expectRow(ctx, `UPDATE payouts SET status = 'paid', settled_at = $1, updated_at = NOW() WHERE provider_ref = $2`, settledAt, providerRef)
}

func (r *PGRepository) MarkPayoutFailed(ctx context.Context, providerRef, reason string) error {
	return r.expectRow(ctx, `UPDATE payouts SET status = 'failed', failure_reason = $1, updated_at = NOW() WHERE provider_ref = $2`, reason, providerRef)
}

func (r *PGRepository) expectRow(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var paidAt pgtype.Timestamptz
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.BuyerID, &inv.Currency, &inv.Total,
		&inv.Status, &inv.ProviderRef, &inv.DueAt, &paidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
	return &inv, nil
}

func scanPayout(row pgx.Row) (*Payout, error) {
	var p Payout
	var failureReason pgtype.Text
	var settledAt pgtype.Timestamptz
	err := row.Scan(
		&p.ID, &p.Number, &p.SupplierID, &p.Amount, &p.Status,
		&p.ProviderRef, &failureReason, &p.RequestedAt, &settledAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if failureReason.Valid {
		p.FailureReason = &failureReason.String
	}
	if settledAt.Valid {
		p.SettledAt = &settledAt.Time
	}
	return &p, nil
}

var _ RepositoryPort = (*PGRepository)(nil)
