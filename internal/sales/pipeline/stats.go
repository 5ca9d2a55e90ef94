package pipeline

import (
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
)

// WeightedValue is value × probability / 100. Missing inputs contribute nothing.
func WeightedValue(value *float64, probability *int) float64 {
	if value == nil || probability == nil {
		return 0
	}
	return *value * float64(*probability) / 100
}

// Summarize orders per-stage rows canonically and computes the open pipeline total.
// Stages without deals are omitted.
func Summarize(rows []StageStat) Summary {
	byStage := make(map[Stage]StageStat, len(rows))
	for _, r := range rows {
		byStage[r.Stage] = r
	}

	summary := Summary{Stages: []StageStat{}}
	for _, stage := range stageOrder {
		st, ok := byStage[stage]
		if !ok || st.Count == 0 {
			continue
		}
		st.TotalValue = salesshared.Round2(st.TotalValue)
		st.WeightedValue = salesshared.Round2(st.WeightedValue)
		summary.Stages = append(summary.Stages, st)
		if !stage.Closed() {
			summary.TotalWeighted += st.WeightedValue
		}
	}
	summary.TotalWeighted = salesshared.Round2(summary.TotalWeighted)
	return summary
}
