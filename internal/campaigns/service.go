package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dependable-calls/dce/internal/shared"
)

var (
	// ErrInvalidTransition indicates a status change outside the lifecycle rules.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrForbidden indicates an operation on a campaign the actor does not own.
	ErrForbidden = errors.New("campaign access denied")
)

// Actor is the authenticated principal performing an operation. BuyerID is
// the buyer profile owning campaigns, zero for admins.
type Actor struct {
	UserID  int64
	Role    string
	BuyerID int64
}

func (a Actor) admin() bool { return a.Role == "admin" }

type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// ResolveActor builds the acting principal for a session user. Buyers must
// have a buyer profile; a missing profile is an authorization failure.
func (s *Service) ResolveActor(ctx context.Context, userID int64, role string) (Actor, error) {
	actor := Actor{UserID: userID, Role: role}
	if role == "buyer" {
		buyerID, err := s.repo.BuyerIDForUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Actor{}, fmt.Errorf("%w: no buyer profile for user %d", ErrForbidden, userID)
			}
			return Actor{}, fmt.Errorf("resolve buyer profile: %w", err)
		}
		actor.BuyerID = buyerID
	}
	return actor, nil
}

func (s *Service) guard(actor Actor, campaign *Campaign) error {
	if actor.admin() {
		return nil
	}
	if campaign.BuyerID != actor.BuyerID {
		return fmt.Errorf("%w: campaign %d", ErrForbidden, campaign.ID)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor Actor, req CreateCampaignRequest) (*Campaign, error) {
	buyerID := actor.BuyerID
	if actor.admin() {
		buyerID = req.BuyerID
	}
	if buyerID <= 0 {
		return nil, fmt.Errorf("%w: no buyer to own the campaign", ErrForbidden)
	}

	existing, err := s.repo.GetByName(ctx, buyerID, req.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing campaign: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: campaign name already in use", ErrAlreadyExists)
	}

	campaign := Campaign{
		BuyerID:       buyerID,
		Name:          req.Name,
		Vertical:      req.Vertical,
		Description:   req.Description,
		Status:        StatusDraft,
		BidFloor:      req.BidFloor,
		DailyBudget:   req.DailyBudget,
		ScheduleStart: req.ScheduleStart,
		ScheduleEnd:   req.ScheduleEnd,
		DestNumber:    req.DestNumber,
		CreatedBy:     actor.UserID,
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		id, err = repo.Create(ctx, campaign)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	campaign.ID = id
	return &campaign, nil
}

func (s *Service) Update(ctx context.Context, actor Actor, id int64, req UpdateCampaignRequest) (*Campaign, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard(actor, existing); err != nil {
		return nil, err
	}
	if existing.Status == StatusArchived {
		return nil, fmt.Errorf("%w: archived campaigns are read-only", ErrInvalidTransition)
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.BidFloor != nil {
		updates["bid_floor"] = *req.BidFloor
	}
	if req.DailyBudget != nil {
		updates["daily_budget"] = *req.DailyBudget
	}
	if req.ScheduleStart != nil {
		updates["schedule_start"] = *req.ScheduleStart
	}
	if req.ScheduleEnd != nil {
		updates["schedule_end"] = *req.ScheduleEnd
	}
	if req.DestNumber != nil {
		updates["dest_number"] = *req.DestNumber
	}

	if len(updates) == 0 {
		return existing, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Update(ctx, id, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	return s.repo.Get(ctx, id)
}

// Transition moves the campaign through its lifecycle, enforcing ownership
// and the allowed state machine, and recording the change in the audit log.
func (s *Service) Transition(ctx context.Context, actor Actor, id int64, to Status) (*Campaign, error) {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard(actor, campaign); err != nil {
		return nil, err
	}
	if campaign.Status == to {
		return campaign, nil
	}
	if !CanTransition(campaign.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, campaign.Status, to)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.SetStatus(ctx, id, to)
	})
	if err != nil {
		return nil, fmt.Errorf("transition campaign: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.UserID,
			Action:   "campaign.transition",
			Entity:   "campaign",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"from": campaign.Status, "to": to},
		})
	}

	campaign.Status = to
	return campaign, nil
}

// Archive is the soft delete: any state may move to archived.
func (s *Service) Archive(ctx context.Context, actor Actor, id int64) error {
	_, err := s.Transition(ctx, actor, id, StatusArchived)
	return err
}

func (s *Service) Get(ctx context.Context, id int64) (*Campaign, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCampaignsRequest) ([]Campaign, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}
