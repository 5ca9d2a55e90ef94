package pipeline

import "time"

type Stage string

const (
	StageLead        Stage = "lead"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

// Deal is a sales opportunity.
type Deal struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	CustomerID        *int64     `json:"customer_id,omitempty"`
	Stage             Stage      `json:"stage"`
	DealValue         *float64   `json:"deal_value,omitempty"`
	Probability       *int       `json:"probability,omitempty"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	ActualCloseDate   *time.Time `json:"actual_close_date,omitempty"`
	LostReason        *string    `json:"lost_reason,omitempty"`
	QuotationID       *int64     `json:"quotation_id,omitempty"`
	Tags              []string   `json:"tags"`
	Notes             *string    `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// StageChange is one entry of a deal's stage history.
type StageChange struct {
	ID        int64     `json:"id"`
	DealID    int64     `json:"deal_id"`
	FromStage Stage     `json:"from_stage"`
	ToStage   Stage     `json:"to_stage"`
	ChangedAt time.Time `json:"changed_at"`
}

// StageStat aggregates the deals currently in one stage.
type StageStat struct {
	Stage         Stage   `json:"stage"`
	Count         int     `json:"count"`
	TotalValue    float64 `json:"total_value"`
	WeightedValue float64 `json:"weighted_value"`
}

// Summary is the pipeline roll-up. TotalWeighted covers open deals only.
type Summary struct {
	Stages        []StageStat `json:"stages"`
	TotalWeighted float64     `json:"total_weighted"`
}
