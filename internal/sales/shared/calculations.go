package shared

import "math"

// Line is the minimal shape needed to total a document.
type Line struct {
	Quantity  float64
	UnitPrice float64
}

// Totals holds the derived monetary fields of a quotation or order.
type Totals struct {
	Subtotal    float64 `json:"subtotal"`
	TaxRate     float64 `json:"tax_rate"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`
}

// LineAmount is quantity × unit price, rounded to cents.
func LineAmount(quantity, unitPrice float64) float64 {
	return Round2(quantity * unitPrice)
}

// RecomputeTotals derives subtotal, tax and total from the line set. Every mutation that
// touches items must go through here; client-supplied totals are never trusted.
func RecomputeTotals(lines []Line, taxRate float64) Totals {
	var subtotal float64
	for _, l := range lines {
		subtotal += LineAmount(l.Quantity, l.UnitPrice)
	}
	subtotal = Round2(subtotal)
	tax := Round2(subtotal * taxRate / 100)
	return Totals{
		Subtotal:    subtotal,
		TaxRate:     taxRate,
		TaxAmount:   tax,
		TotalAmount: Round2(subtotal + tax),
	}
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
