package campaigns

type CreateCampaignRequest struct {
	// BuyerID is honored for admins only; buyers always create under
	// their own profile.
	BuyerID       int64   `json:"buyer_id,omitempty" validate:"omitempty,gt=0"`
	Name          string  `json:"name" validate:"required,max=200"`
	Vertical      string  `json:"vertical" validate:"required,oneof=insurance home_services legal medicare solar travel"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	BidFloor      float64 `json:"bid_floor" validate:"gte=0"`
	DailyBudget   float64 `json:"daily_budget" validate:"gte=0"`
	ScheduleStart int     `json:"schedule_start" validate:"gte=0,lte=23"`
	ScheduleEnd   int     `json:"schedule_end" validate:"gte=0,lte=23"`
	DestNumber    string  `json:"dest_number" validate:"required,e164"`
}

type UpdateCampaignRequest struct {
	Name          *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	Description   *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	BidFloor      *float64 `json:"bid_floor,omitempty" validate:"omitempty,gte=0"`
	DailyBudget   *float64 `json:"daily_budget,omitempty" validate:"omitempty,gte=0"`
	ScheduleStart *int     `json:"schedule_start,omitempty" validate:"omitempty,gte=0,lte=23"`
	ScheduleEnd   *int     `json:"schedule_end,omitempty" validate:"omitempty,gte=0,lte=23"`
	DestNumber    *string  `json:"dest_number,omitempty" validate:"omitempty,e164"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active paused completed archived"`
}

type ListCampaignsRequest struct {
	BuyerID  *int64  `json:"buyer_id,omitempty" validate:"omitempty,gt=0"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=draft active paused completed archived"`
	Vertical *string `json:"vertical,omitempty"`
	Search   *string `json:"search,omitempty"`
	Limit    int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int     `json:"offset" validate:"gte=0"`
}
