package campaigns

import "time"

// Status enumerates campaign lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// transitions lists the allowed status moves. Archiving is reachable from
// every state; completed campaigns can only be archived.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusActive, StatusArchived},
	StatusActive:    {StatusPaused, StatusCompleted, StatusArchived},
	StatusPaused:    {StatusActive, StatusCompleted, StatusArchived},
	StatusCompleted: {StatusArchived},
	StatusArchived:  {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Verticals the exchange trades calls in.
var Verticals = []string{"insurance", "home_services", "legal", "medicare", "solar", "travel"}

// Campaign is a buyer's standing order for inbound calls.
type Campaign struct {
	ID            int64     `json:"id" db:"id"`
	BuyerID       int64     `json:"buyer_id" db:"buyer_id"`
	Name          string    `json:"name" db:"name"`
	Vertical      string    `json:"vertical" db:"vertical"`
	Description   *string   `json:"description,omitempty" db:"description"`
	Status        Status    `json:"status" db:"status"`
	BidFloor      float64   `json:"bid_floor" db:"bid_floor"`
	DailyBudget   float64   `json:"daily_budget" db:"daily_budget"`
	ScheduleStart int       `json:"schedule_start" db:"schedule_start"`
	ScheduleEnd   int       `json:"schedule_end" db:"schedule_end"`
	DestNumber    string    `json:"dest_number" db:"dest_number"`
	CreatedBy     int64     `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
