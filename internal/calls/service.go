package calls

import "context"

// Service exposes read operations over call records.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Call, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCallsRequest) ([]Call, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

func (s *Service) CampaignStats(ctx context.Context, campaignID int64) (*CampaignStats, error) {
	return s.repo.StatsByCampaign(ctx, campaignID)
}
