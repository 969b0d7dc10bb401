package blog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates a missing post.
	ErrNotFound = errors.New("post not found")
	// ErrSlugTaken indicates a slug collision on insert.
	ErrSlugTaken = errors.New("slug already in use")
)

// Repository defines post storage.
type Repository interface {
	Create(ctx context.Context, post *Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*Post, error)
	GetBySlug(ctx context.Context, slug string) (*Post, error)
	List(ctx context.Context, req ListPostsRequest) ([]Post, int, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	SetStatus(ctx context.Context, id int64, status PostStatus, publishedAt *time.Time) error
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const postColumns = `id, title, slug, COALESCE(excerpt, ''), content, status, author_id, tags, published_at, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, post *Post) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO blog_posts (title, slug, excerpt, content, status, author_id, tags, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NOW(), NOW())
		RETURNING id`,
		post.Title, post.Slug, post.Excerpt, post.Content, post.Status, post.AuthorID, post.Tags,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrSlugTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Post, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM blog_posts WHERE id = $1`, postColumns), id)
	return scanPost(row)
}

func (r *PGRepository) GetBySlug(ctx context.Context, slug string) (*Post, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM blog_posts WHERE slug = $1`, postColumns), slug)
	return scanPost(row)
}

func (r *PGRepository) List(ctx context.Context, req ListPostsRequest) ([]Post, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.Tag != nil {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", argPos))
		args = append(args, *req.Tag)
		argPos++
	}
	if req.Search != nil {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR content ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}

	where := ""
	for i, cond := range conditions {
		if i == 0 {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM blog_posts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM blog_posts%s ORDER BY COALESCE(published_at, created_at) DESC LIMIT $%d OFFSET $%d`,
		postColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, *post)
	}
	return posts, total, rows.Err()
}

var allowedPostColumns = map[string]bool{
	"title":   true,
	"slug":    true,
	"excerpt": true,
	"content": true,
	"tags":    true,
}

func (r *PGRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	setClauses := "updated_at = NOW()"
	var args []interface{}
	argPos := 1
	for col, value := range updates {
		if !allowedPostColumns[col] {
			return fmt.Errorf("column %q not updatable", col)
		}
		setClauses += fmt.Sprintf(", %s = $%d", col, argPos)
		args = append(args, value)
		argPos++
	}
	args = append(args, id)

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE blog_posts SET %s WHERE id = $%d`, setClauses, argPos), args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlugTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetStatus(ctx context.Context, id int64, status PostStatus, publishedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blog_posts
		SET status = $1, published_at = COALESCE($2, published_at), updated_at = NOW()
		WHERE id = $3`,
		status, publishedAt, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blog_posts WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

func scanPost(row pgx.Row) (*Post, error) {
	var post Post
	var publishedAt pgtype.Timestamptz
	err := row.Scan(
		&post.ID, &post.Title, &post.Slug, &post.Excerpt, &post.Content,
		&post.Status, &post.AuthorID, &post.Tags, &publishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

var _ Repository = (*PGRepository)(nil)
