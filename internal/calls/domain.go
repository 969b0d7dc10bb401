package calls

import "time"

// CallStatus enumerates call record outcomes.
type CallStatus string

const (
	StatusRinging   CallStatus = "ringing"
	StatusConnected CallStatus = "connected"
	StatusCompleted CallStatus = "completed"
	StatusFailed    CallStatus = "failed"
	StatusRejected  CallStatus = "rejected"
)

// Call is a routed call between a supplier source and a buyer campaign.
type Call struct {
	ID           int64      `json:"id"`
	CampaignID   int64      `json:"campaign_id"`
	SupplierID   int64      `json:"supplier_id"`
	BuyerID      int64      `json:"buyer_id"`
	CallerNumber string     `json:"caller_number"`
	Status       CallStatus `json:"status"`
	Duration     int        `json:"duration_seconds"`
	Billable     bool       `json:"billable"`
	ChargeAmount float64    `json:"charge_amount"`
	PayoutAmount float64    `json:"payout_amount"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CampaignStats aggregates call outcomes for a campaign.
type CampaignStats struct {
	CampaignID    int64   `json:"campaign_id"`
	TotalCalls    int     `json:"total_calls"`
	Connected     int     `json:"connected"`
	Billable      int     `json:"billable"`
	AvgDuration   float64 `json:"avg_duration_seconds"`
	TotalCharge   float64 `json:"total_charge"`
	TotalPayout   float64 `json:"total_payout"`
	ConversionPct float64 `json:"conversion_pct"`
}

// ListCallsRequest filters call listings.
type ListCallsRequest struct {
	CampaignID *int64     `json:"campaign_id,omitempty"`
	SupplierID *int64     `json:"supplier_id,omitempty"`
	Status     *string    `json:"status,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}
