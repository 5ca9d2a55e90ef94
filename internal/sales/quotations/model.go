package quotations

import "time"

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusViewed   Status = "viewed"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

type Quotation struct {
	ID          int64      `json:"id"`
	QuoteNumber string     `json:"quote_number"`
	CustomerID  int64      `json:"customer_id"`
	Status      Status     `json:"status"`
	Subtotal    float64    `json:"subtotal"`
	TaxRate     float64    `json:"tax_rate"`
	TaxAmount   float64    `json:"tax_amount"`
	TotalAmount float64    `json:"total_amount"`
	Currency    string     `json:"currency"`
	ValidUntil  time.Time  `json:"valid_until"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Items       []Item     `json:"items"`
}

type Item struct {
	ID          int64   `json:"id"`
	QuotationID int64   `json:"quotation_id"`
	ProductID   int64   `json:"product_id"`
	Description *string `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CostPrice   float64 `json:"cost_price"`
	Amount      float64 `json:"amount"`
	LineOrder   int     `json:"line_order"`
}
