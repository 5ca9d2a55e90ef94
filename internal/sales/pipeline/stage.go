package pipeline

import (
	"fmt"
	"strings"

	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// stageOrder is the display order of stages.
var stageOrder = []Stage{StageLead, StageQualified, StageProposal, StageNegotiation, StageWon, StageLost}

func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range stageOrder {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown pipeline stage %q", shared.ErrValidation, s)
}

// Closed reports whether the deal has been decided.
func (s Stage) Closed() bool {
	return s == StageWon || s == StageLost
}

// CanTransition reports whether policy allows a stage change. Open stages move freely
// in either direction under both policies; the strict policy additionally keeps closed
// deals closed.
func CanTransition(policy salesshared.Policy, from, to Stage) bool {
	if from == to || policy != salesshared.PolicyStrict {
		return true
	}
	return !from.Closed()
}
