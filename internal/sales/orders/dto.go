package orders

import "time"

type CreateOrderRequest struct {
	OrderNumber string        `json:"order_number,omitempty" validate:"omitempty,max=40"`
	QuotationID *int64        `json:"quotation_id,omitempty" validate:"omitempty,gt=0"`
	CustomerID  int64         `json:"customer_id" validate:"required,gt=0"`
	TaxRate     float64       `json:"tax_rate" validate:"gte=0,lte=100"`
	Currency    string        `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes       *string       `json:"notes,omitempty"`
	Items       []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ItemRequest struct {
	ProductID   int64    `json:"product_id" validate:"required,gt=0"`
	Description *string  `json:"description,omitempty"`
	Quantity    float64  `json:"quantity" validate:"gt=0"`
	UnitPrice   *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	CostPrice   *float64 `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	SupplierID  *int64   `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type RecordPaymentRequest struct {
	Amount float64    `json:"amount" validate:"gt=0"`
	PaidAt *time.Time `json:"paid_at,omitempty"`
	Note   *string    `json:"note,omitempty" validate:"omitempty,max=500"`
	// IdempotencyKey is taken from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

type ListFilter struct {
	CustomerID    *int64
	Status        *Status
	PaymentStatus *PaymentStatus
	Limit         int
	Offset        int
}
