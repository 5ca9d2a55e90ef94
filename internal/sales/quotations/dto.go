package quotations

import "time"

type CreateQuotationRequest struct {
	QuoteNumber string        `json:"quote_number,omitempty" validate:"omitempty,max=40"`
	CustomerID  int64         `json:"customer_id" validate:"required,gt=0"`
	TaxRate     float64       `json:"tax_rate" validate:"gte=0,lte=100"`
	Currency    string        `json:"currency,omitempty" validate:"omitempty,len=3"`
	ValidUntil  *time.Time    `json:"valid_until,omitempty"`
	Notes       *string       `json:"notes,omitempty"`
	Items       []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ItemRequest describes one line. Prices left empty are taken from the product catalog.
type ItemRequest struct {
	ProductID   int64    `json:"product_id" validate:"required,gt=0"`
	Description *string  `json:"description,omitempty"`
	Quantity    float64  `json:"quantity" validate:"gt=0"`
	UnitPrice   *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	CostPrice   *float64 `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
}

type ReplaceItemsRequest struct {
	TaxRate *float64      `json:"tax_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Items   []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type ListFilter struct {
	CustomerID *int64
	Status     *Status
	Limit      int
	Offset     int
}
