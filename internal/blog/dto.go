package blog

// CreatePostRequest creates a draft post.
type CreatePostRequest struct {
	Title   string   `json:"title" validate:"required,min=3,max=200"`
	Excerpt string   `json:"excerpt" validate:"max=500"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"max=10,dive,min=1,max=40"`
}

// UpdatePostRequest applies a partial update.
type UpdatePostRequest struct {
	Title   *string   `json:"title" validate:"omitempty,min=3,max=200"`
	Excerpt *string   `json:"excerpt" validate:"omitempty,max=500"`
	Content *string   `json:"content" validate:"omitempty,min=1"`
	Tags    *[]string `json:"tags" validate:"omitempty,max=10,dive,min=1,max=40"`
}

// ListPostsRequest filters post listings.
type ListPostsRequest struct {
	Status *string `validate:"omitempty,oneof=draft published archived"`
	Tag    *string `validate:"omitempty,min=1,max=40"`
	Search *string `validate:"omitempty,max=100"`
	Limit  int     `validate:"gte=1,lte=100"`
	Offset int     `validate:"gte=0"`
}
