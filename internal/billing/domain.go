package billing

import "time"

// InvoiceStatus enumerates buyer invoice states.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
	InvoiceUncollectible InvoiceStatus = "uncollectible"
)

// PayoutStatus enumerates supplier payout states.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
	PayoutCanceled   PayoutStatus = "canceled"
)

// Invoice bills a buyer for billable calls in a period.
type Invoice struct {
	ID          int64         `json:"id"`
	Number      string        `json:"number"`
	BuyerID     int64         `json:"buyer_id"`
	Currency    string        `json:"currency"`
	Total       float64       `json:"total"`
	Status      InvoiceStatus `json:"status"`
	ProviderRef string        `json:"provider_ref,omitempty"`
	DueAt       time.Time     `json:"due_at"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Payout settles accumulated call revenue to a supplier.
type Payout struct {
	ID            int64        `json:"id"`
	Number        string       `json:"number"`
	SupplierID    int64        `json:"supplier_id"`
	Amount        float64      `json:"amount"`
	Status        PayoutStatus `json:"status"`
	ProviderRef   string       `json:"provider_ref,omitempty"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	RequestedAt   time.Time    `json:"requested_at"`
	SettledAt     *time.Time   `json:"settled_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// PayoutStatusInput for the admin payout status endpoint. ProviderRef is
// required when moving to processing, FailureReason applies to failed.
type PayoutStatusInput struct {
	Status        string `json:"status" validate:"required,oneof=processing paid failed"`
	ProviderRef   string `json:"provider_ref,omitempty" validate:"omitempty,max=255"`
	FailureReason string `json:"failure_reason,omitempty" validate:"omitempty,max=500"`
}

// InvoiceInput for creating draft invoices.
type InvoiceInput struct {
	BuyerID     int64   `json:"buyer_id" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"required,len=3"`
	Total       float64 `json:"total" validate:"required,gt=0"`
	DueDays     int     `json:"due_days" validate:"gte=0,lte=90"`
	ProviderRef string  `json:"provider_ref,omitempty" validate:"omitempty,max=255"`
}
