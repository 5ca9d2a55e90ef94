package orders

import (
	"fmt"
	"strings"

	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// canonicalPath is the fulfilment sequence Advance walks.
var canonicalPath = []Status{
	StatusConfirmed,
	StatusPurchasing,
	StatusInTransit,
	StatusQualityCheck,
	StatusDelivered,
	StatusCompleted,
}

var itemPath = []ItemStatus{ItemPending, ItemOrdered, ItemShipped, ItemReceived, ItemDelivered}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == StatusCancelled {
		return st, nil
	}
	for _, known := range canonicalPath {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown order status %q", shared.ErrValidation, s)
}

func ParseItemStatus(s string) (ItemStatus, error) {
	st := ItemStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range itemPath {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown item status %q", shared.ErrValidation, s)
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case PaymentUnpaid, PaymentPartial, PaymentPaid:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", shared.ErrValidation, s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the status after s on the canonical path. ok is false for terminal
// statuses.
func (s Status) Next() (next Status, ok bool) {
	if s.Terminal() {
		return "", false
	}
	for i, st := range canonicalPath[:len(canonicalPath)-1] {
		if st == s {
			return canonicalPath[i+1], true
		}
	}
	return "", false
}

// CanTransition reports whether policy allows a direct jump between statuses. The
// permissive policy allows backward jumps as a manual correction tool; the strict one
// only allows one step forward or cancellation of an open order.
func CanTransition(policy salesshared.Policy, from, to Status) bool {
	if from == to {
		return true
	}
	if policy != salesshared.PolicyStrict {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// CanTransitionItem applies the same policy to per-item fulfilment status. Strict item
// progress may skip steps but never goes backward.
func CanTransitionItem(policy salesshared.Policy, from, to ItemStatus) bool {
	if from == to || policy != salesshared.PolicyStrict {
		return true
	}
	return itemRank(to) > itemRank(from)
}

func itemRank(s ItemStatus) int {
	for i, st := range itemPath {
		if st == s {
			return i
		}
	}
	return -1
}
