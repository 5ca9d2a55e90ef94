package pipeline

import (
	"context"
	"time"
)

// LinkQuotation records the quotation a deal converted into. It runs on repo so the
// caller can hold the deal lock inside its own transaction; the caller verifies that the
// quotation exists. Linking does not change stage totals, so the stats cache is left alone.
func LinkQuotation(ctx context.Context, repo Repository, dealID, quotationID int64, at time.Time) (*Deal, error) {
	if _, err := repo.GetForUpdate(ctx, dealID); err != nil {
		return nil, err
	}
	if err := repo.SetQuotation(ctx, dealID, quotationID, at); err != nil {
		return nil, err
	}
	return repo.Get(ctx, dealID)
}
