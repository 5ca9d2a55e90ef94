package quotations

import (
	"fmt"
	"strings"

	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

var allStatuses = []Status{StatusDraft, StatusSent, StatusViewed, StatusAccepted, StatusRejected, StatusExpired}

// strictTransitions is the forward-only lifecycle. Expiry is reachable from every
// state a customer can still act on.
var strictTransitions = map[Status][]Status{
	StatusDraft:    {StatusSent},
	StatusSent:     {StatusViewed, StatusAccepted, StatusRejected, StatusExpired},
	StatusViewed:   {StatusAccepted, StatusRejected, StatusExpired},
	StatusAccepted: {StatusExpired},
}

// expirable lists the statuses the expiry sweep moves to expired.
var expirable = []Status{StatusSent, StatusViewed, StatusAccepted}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown quotation status %q", shared.ErrValidation, s)
}

// Terminal reports whether items can no longer be replaced.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusExpired
}

// CanTransition reports whether policy allows moving from one status to another.
// Re-entering the current status is always allowed.
func CanTransition(policy salesshared.Policy, from, to Status) bool {
	if from == to {
		return true
	}
	if policy != salesshared.PolicyStrict {
		return true
	}
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
