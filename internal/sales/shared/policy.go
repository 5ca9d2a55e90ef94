package shared

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"

	"github.com/smt-trading/crm/internal/shared"
)

// Policy selects how strictly the lifecycle state machines police status changes.
type Policy string

const (
	// PolicyPermissive accepts any status change between known states. It is the
	// default because sales staff use direct status edits to correct mistakes.
	PolicyPermissive Policy = "permissive"
	// PolicyStrict only accepts the forward transitions of each lifecycle.
	PolicyStrict Policy = "strict"
)

// PolicyFor maps the SALES_STRICT_TRANSITIONS switch onto a Policy.
func PolicyFor(strict bool) Policy {
	if strict {
		return PolicyStrict
	}
	return PolicyPermissive
}

// DefaultCurrency is applied when a document is created without one.
const DefaultCurrency = "USD"

// NormalizeCurrency validates an ISO 4217 code and returns it upper-cased.
func NormalizeCurrency(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, code)
	}
	return unit.String(), nil
}
