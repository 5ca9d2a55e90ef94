package orders

import (
	"time"

	"github.com/google/uuid"

	salesshared "github.com/smt-trading/crm/internal/sales/shared"
)

type Status string

const (
	StatusConfirmed    Status = "confirmed"
	StatusPurchasing   Status = "purchasing"
	StatusInTransit    Status = "in_transit"
	StatusQualityCheck Status = "quality_check"
	StatusDelivered    Status = "delivered"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemOrdered   ItemStatus = "ordered"
	ItemShipped   ItemStatus = "shipped"
	ItemReceived  ItemStatus = "received"
	ItemDelivered ItemStatus = "delivered"
)

type Order struct {
	ID            int64         `json:"id"`
	OrderNumber   string        `json:"order_number"`
	QuotationID   *int64        `json:"quotation_id,omitempty"`
	CustomerID    int64         `json:"customer_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Currency      string        `json:"currency"`
	Subtotal      float64       `json:"subtotal"`
	TaxRate       float64       `json:"tax_rate"`
	TaxAmount     float64       `json:"tax_amount"`
	TotalAmount   float64       `json:"total_amount"`
	PaidAmount    float64       `json:"paid_amount"`
	Notes         *string       `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []Item        `json:"items"`
}

type Item struct {
	ID          int64      `json:"id"`
	OrderID     int64      `json:"order_id"`
	ProductID   int64      `json:"product_id"`
	Description *string    `json:"description,omitempty"`
	Quantity    float64    `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	CostPrice   float64    `json:"cost_price"`
	Amount      float64    `json:"amount"`
	Status      ItemStatus `json:"status"`
	SupplierID  *int64     `json:"supplier_id,omitempty"`
	LineOrder   int        `json:"line_order"`
}

// Payment is one entry in an order's payment ledger.
type Payment struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	Reference uuid.UUID `json:"reference"`
	Amount    float64   `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
	Note      *string   `json:"note,omitempty"`
}

// Confirmed returns a new order in its initial state: confirmed and unpaid.
func Confirmed(number string, customerID int64, currency string, totals salesshared.Totals, at time.Time) Order {
	return Order{
		OrderNumber:   number,
		CustomerID:    customerID,
		Status:        StatusConfirmed,
		PaymentStatus: PaymentUnpaid,
		Currency:      currency,
		Subtotal:      totals.Subtotal,
		TaxRate:       totals.TaxRate,
		TaxAmount:     totals.TaxAmount,
		TotalAmount:   totals.TotalAmount,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

// PendingItem returns a line awaiting procurement with its amount derived.
func PendingItem(productID int64, quantity, unitPrice, costPrice float64) Item {
	return Item{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		CostPrice: costPrice,
		Amount:    salesshared.LineAmount(quantity, unitPrice),
		Status:    ItemPending,
	}
}

// Lines adapts items for salesshared.RecomputeTotals.
func Lines(items []Item) []salesshared.Line {
	out := make([]salesshared.Line, len(items))
	for i, it := range items {
		out[i] = salesshared.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return out
}
