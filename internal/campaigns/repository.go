package campaigns

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dependable-calls/dce/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("campaign not found")
	ErrAlreadyExists = errors.New("campaign already exists")
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	BuyerIDForUser(ctx context.Context, userID int64) (int64, error)
	Get(ctx context.Context, id int64) (*Campaign, error)
	GetByName(ctx context.Context, buyerID int64, name string) (*Campaign, error)
	List(ctx context.Context, req ListCampaignsRequest) ([]Campaign, int, error)
	Create(ctx context.Context, campaign Campaign) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	SetStatus(ctx context.Context, id int64, status Status) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

// BuyerIDForUser resolves the buyer profile that owns campaigns for a user
// account.
func (r *repository) BuyerIDForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM buyers WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

const campaignColumns = `id, buyer_id, name, vertical, description, status, bid_floor, daily_budget, schedule_start, schedule_end, dest_number, created_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Campaign, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1`, campaignColumns), id)
	return scanCampaign(row)
}

func (r *repository) GetByName(ctx context.Context, buyerID int64, name string) (*Campaign, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM campaigns WHERE buyer_id = $1 AND name = $2`, campaignColumns), buyerID, name)
	return scanCampaign(row)
}

func (r *repository) List(ctx context.Context, req ListCampaignsRequest) ([]Campaign, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.BuyerID != nil {
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", argPos))
		args = append(args, *req.BuyerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.Vertical != nil {
		conditions = append(conditions, fmt.Sprintf("vertical = $%d", argPos))
		args = append(args, *req.Vertical)
		argPos++
	}
	if req.Search != nil && *req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM campaigns %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, campaignColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaignRow(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, campaign Campaign) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO campaigns (buyer_id, name, vertical, description, status, bid_floor, daily_budget, schedule_start, schedule_end, dest_number, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id`,
		campaign.BuyerID, campaign.Name, campaign.Vertical,
		pgtype.Text{String: derefString(campaign.Description), Valid: campaign.Description != nil},
		campaign.Status, campaign.BidFloor, campaign.DailyBudget,
		campaign.ScheduleStart, campaign.ScheduleEnd, campaign.DestNumber, campaign.CreatedBy,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE campaigns SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"name", "description", "bid_floor", "daily_budget", "schedule_start", "schedule_end", "dest_number"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCampaign(row pgx.Row) (*Campaign, error) {
	c, err := scanCampaignRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func scanCampaignRow(row pgx.Row) (*Campaign, error) {
	var c Campaign
	var description pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(
		&c.ID, &c.BuyerID, &c.Name, &c.Vertical, &description, &c.Status,
		&c.BidFloor, &c.DailyBudget, &c.ScheduleStart, &c.ScheduleEnd,
		&c.DestNumber, &c.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		c.Description = &description.String
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		c.UpdatedAt = updatedAt.Time
	}
	return &c, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
