package calls

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing call record.
var ErrNotFound = errors.New("call not found")

// Repository defines read access to call records. Calls are written by the
// telephony ingest path, never by the API.
type Repository interface {
	Get(ctx context.Context, id int64) (*Call, error)
	List(ctx context.Context, req ListCallsRequest) ([]Call, int, error)
	StatsByCampaign(ctx context.Context, campaignID int64) (*CampaignStats, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const callColumns = `id, campaign_id, supplier_id, buyer_id, caller_number, status, duration_seconds, billable, charge_amount, payout_amount, started_at, ended_at, created_at`

func (r *repository) Get(ctx context.Context, id int64) (*Call, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM calls WHERE id = $1`, callColumns), id)
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return call, nil
}

func (r *repository) List(ctx context.Context, req ListCallsRequest) ([]Call, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.CampaignID != nil {
		conditions = append(conditions, fmt.Sprintf("campaign_id = $%d", argPos))
		args = append(args, *req.CampaignID)
		argPos++
	}
	if req.SupplierID != nil {
		conditions = append(conditions, fmt.Sprintf("supplier_id = $%d", argPos))
		args = append(args, *req.SupplierID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.From != nil {
		conditions = append(conditions, fmt.Sprintf("started_at >= $%d", argPos))
		args = append(args, *req.From)
		argPos++
	}
	if req.To != nil {
		conditions = append(conditions, fmt.Sprintf("started_at < $%d", argPos))
		args = append(args, *req.To)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM calls %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM calls %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, callColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, *call)
	}
	return calls, total, rows.Err()
}

func (r *repository) StatsByCampaign(ctx context.Context, campaignID int64) (*CampaignStats, error) {
	stats := CampaignStats{CampaignID: campaignID}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('connected','completed')),
		       COUNT(*) FILTER (WHERE billable),
		       COALESCE(AVG(duration_seconds) FILTER (WHERE status = 'completed'), 0),
		       COALESCE(SUM(charge_amount) FILTER (WHERE billable), 0),
		       COALESCE(SUM(payout_amount) FILTER (WHERE billable), 0)
		FROM calls WHERE campaign_id = $1`,
		campaignID,
	).Scan(&stats.TotalCalls, &stats.Connected, &stats.Billable, &stats.AvgDuration, &stats.TotalCharge, &stats.TotalPayout)
	if err != nil {
		return nil, err
	}
	if stats.TotalCalls > 0 {
		stats.ConversionPct = float64(stats.Billable) / float64(stats.TotalCalls) * 100
	}
	return &stats, nil
}

func scanCall(row pgx.Row) (*Call, error) {
	var c Call
	var endedAt pgtype.Timestamptz
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.SupplierID, &c.BuyerID, &c.CallerNumber,
		&c.Status, &c.Duration, &c.Billable, &c.ChargeAmount, &c.PayoutAmount,
		&c.StartedAt, &endedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		c.EndedAt = &endedAt.Time
	}
	return &c, nil
}
