package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gosimple/slug"
)

// ErrInvalidStatus indicates a publication change not allowed from the
// current state.
var ErrInvalidStatus = errors.New("invalid publication status change")

const slugAttempts = 20

// Service implements blog business logic.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a blog service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Create stores a new draft post with a slug derived from the title. A taken
// slug gets a numeric suffix.
func (s *Service) Create(ctx context.Context, authorID int64, req CreatePostRequest) (*Post, error) {
	postSlug, err := s.uniqueSlug(ctx, req.Title)
	if err != nil {
		return nil, err
	}
	post := &Post{
		Title:    req.Title,
		Slug:     postSlug,
		Excerpt:  req.Excerpt,
		Content:  req.Content,
		Status:   StatusDraft,
		AuthorID: authorID,
		Tags:     req.Tags,
	}
	id, err := s.repo.Create(ctx, post)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Update applies a partial update. Changing the title does not change the
// slug; published URLs stay stable.
func (s *Service) Update(ctx context.Context, id int64, req UpdatePostRequest) (*Post, error) {
	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Excerpt != nil {
		updates["excerpt"] = *req.Excerpt
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.Tags != nil {
		updates["tags"] = *req.Tags
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Publish moves a draft post to published and stamps published_at once.
func (s *Service) Publish(ctx context.Context, id int64) (*Post, error) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status == StatusPublished {
		return post, nil
	}
	if post.Status == StatusArchived {
		return nil, ErrInvalidStatus
	}
	var publishedAt *time.Time
	if post.PublishedAt == nil {
		t := s.now()
		publishedAt = &t
	}
	if err := s.repo.SetStatus(ctx, id, StatusPublished, publishedAt); err != nil {
		return nil, err
	}
	s.logger.Info("post published", slog.Int64("post_id", id), slog.String("slug", post.Slug))
	return s.repo.GetByID(ctx, id)
}

// Unpublish moves a published post back to draft.
func (s *Service) Unpublish(ctx context.Context, id int64) (*Post, error) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != StatusPublished {
		return nil, ErrInvalidStatus
	}
	if err := s.repo.SetStatus(ctx, id, StatusDraft, nil); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Archive retires a post from listings while keeping its URL resolvable for
// editors.
func (s *Service) Archive(ctx context.Context, id int64) error {
	return s.repo.SetStatus(ctx, id, StatusArchived, nil)
}

// Get returns one post by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Post, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPublishedBySlug resolves a public post URL. Drafts and archived posts
// are not visible here.
func (s *Service) GetPublishedBySlug(ctx context.Context, postSlug string) (*Post, error) {
	post, err := s.repo.GetBySlug(ctx, postSlug)
	if err != nil {
		return nil, err
	}
	if post.Status != StatusPublished {
		return nil, ErrNotFound
	}
	return post, nil
}

// List returns posts matching the filters plus the total count.
func (s *Service) List(ctx context.Context, req ListPostsRequest) ([]Post, int, error) {
	if req.Limit == 0 {
		req.Limit = 20
	}
	return s.repo.List(ctx, req)
}

// ListPublished is the public listing: published posts only, regardless of
// the caller's filters.
func (s *Service) ListPublished(ctx context.Context, req ListPostsRequest) ([]Post, int, error) {
	published := string(StatusPublished)
	req.Status = &published
	return s.List(ctx, req)
}

func (s *Service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "post"
	}
	candidate := base
	for i := 2; i <= slugAttempts; i++ {
		taken, err := s.repo.SlugTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, slugAttempts)
}
