package orders

// DerivePaymentStatus is the only source of an order's payment status. Overpayment is
// kept as paid; the ledger never clamps the cumulative amount.
func DerivePaymentStatus(paid, total float64) PaymentStatus {
	switch {
	case paid <= 0:
		return PaymentUnpaid
	case total <= 0, paid >= total:
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// paymentsModule scopes idempotency keys of the payment ledger.
const paymentsModule = "sales.order_payments"
