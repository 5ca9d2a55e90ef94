package pipeline

import "time"

type CreateDealRequest struct {
	Title             string     `json:"title" validate:"required,max=200"`
	CustomerID        *int64     `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	DealValue         *float64   `json:"deal_value,omitempty" validate:"omitempty,gte=0"`
	Probability       *int       `json:"probability,omitempty" validate:"omitempty,gte=0,lte=100"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	Tags              []string   `json:"tags,omitempty" validate:"omitempty,dive,required,max=50"`
	Notes             *string    `json:"notes,omitempty"`
}

// UpdateDealRequest edits the descriptive fields of a deal. Nil fields are unchanged.
type UpdateDealRequest struct {
	Title             *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	DealValue         *float64   `json:"deal_value,omitempty" validate:"omitempty,gte=0"`
	Probability       *int       `json:"probability,omitempty" validate:"omitempty,gte=0,lte=100"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	Tags              *[]string  `json:"tags,omitempty" validate:"omitempty,dive,required,max=50"`
	Notes             *string    `json:"notes,omitempty"`
}

type SetStageRequest struct {
	Stage      string  `json:"stage" validate:"required"`
	LostReason *string `json:"lost_reason,omitempty" validate:"omitempty,max=500"`
}

type LinkQuotationRequest struct {
	QuotationID int64 `json:"quotation_id" validate:"required,gt=0"`
}

type ListFilter struct {
	Stage      *Stage
	CustomerID *int64
	Tag        string
	Limit      int
	Offset     int
}
