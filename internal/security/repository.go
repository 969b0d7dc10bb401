package security

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists CSP violation reports.
type Repository interface {
	Insert(ctx context.Context, report StoredReport) error
	List(ctx context.Context, severity *string, limit, offset int) ([]StoredReport, int, error)
	DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, report StoredReport) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO csp_reports (document_uri, violated_directive, blocked_uri, source_file, script_sample, severity, threat_patterns, client_ip, user_agent, received_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), NOW())`,
		report.DocumentURI, report.ViolatedDirective, report.BlockedURI, report.SourceFile,
		report.ScriptSample, report.Severity, report.ThreatPatterns, report.ClientIP, report.UserAgent,
	)
	return err
}

func (r *PGRepository) List(ctx context.Context, severity *string, limit, offset int) ([]StoredReport, int, error) {
	where := ""
	var args []interface{}
	argPos := 1
	if severity != nil {
		where = " WHERE severity = $1"
		args = append(args, *severity)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM csp_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, document_uri, violated_directive, blocked_uri, COALESCE(source_file, ''), COALESCE(script_sample, ''), severity, threat_patterns, client_ip, COALESCE(user_agent, ''), received_at
		FROM csp_reports%s ORDER BY received_at DESC LIMIT $%d OFFSET $%d`, where, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []StoredReport
	for rows.Next() {
		var report StoredReport
		if err := rows.Scan(
			&report.ID, &report.DocumentURI, &report.ViolatedDirective, &report.BlockedURI,
			&report.SourceFile, &report.ScriptSample, &report.Severity, &report.ThreatPatterns,
			&report.ClientIP, &report.UserAgent, &report.ReceivedAt,
		); err != nil {
			return nil, 0, err
		}
		reports = append(reports, report)
	}
	return reports, total, rows.Err()
}

func (r *PGRepository) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	tag, err := r.pool.Exec(ctx, `DELETE FROM csp_reports WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
