package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment axis of an order, kept apart from OrderStatus.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Refundable reports whether money has been captured and not yet fully returned.
func (s PaymentStatus) Refundable() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusPartiallyRefunded
}

// PaymentMethod selects how the order is paid.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "razorpay"
	PaymentMethodCOD    PaymentMethod = "cod"
)

// OrderItem represents a single item within an order.
type OrderItem struct {
	ID        uint            `json:"-" gorm:"primaryKey"`
	OrderID   string          `json:"-" gorm:"type:varchar(36);index;not null"`
	ProductID string          `json:"productId" gorm:"type:varchar(36);not null"`
	Name      string          `json:"name" gorm:"type:varchar(100)"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"` // Price at the time of order
}

// LineTotal is price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Address is the shipping address snapshot taken at checkout.
type Address struct {
	FullName   string `json:"fullName" gorm:"type:varchar(100)" validate:"required,max=100"`
	Phone      string `json:"phone" gorm:"type:varchar(20)" validate:"required,max=20"`
	Line1      string `json:"line1" gorm:"type:varchar(200)" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" gorm:"type:varchar(200)" validate:"max=200"`
	City       string `json:"city" gorm:"type:varchar(100)" validate:"required,max=100"`
	State      string `json:"state" gorm:"type:varchar(100)" validate:"max=100"`
	PostalCode string `json:"postalCode" gorm:"type:varchar(20)" validate:"required,max=20"`
	Country    string `json:"country" gorm:"type:varchar(60)" validate:"max=60"`
}

// Payment is the payment block of an order.
type Payment struct {
	Method            PaymentMethod   `json:"method" gorm:"type:varchar(20);not null"`
	ExternalOrderID   string          `json:"externalOrderId,omitempty" gorm:"type:varchar(64);index"`
	ExternalPaymentID string          `json:"externalPaymentId,omitempty" gorm:"type:varchar(64)"`
	ExternalSignature string          `json:"-" gorm:"type:varchar(128)"`
	Status            PaymentStatus   `json:"status" gorm:"type:varchar(20);index;not null"`
	FailureReason     string          `json:"failureReason,omitempty" gorm:"type:varchar(255)"`
	RefundAmount      decimal.Decimal `json:"refundAmount" gorm:"type:decimal(12,2);not null"`
	RefundReason      string          `json:"refundReason,omitempty" gorm:"type:varchar(255)"`
}

// Order represents a customer order.
type Order struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderNumber     string          `json:"orderNumber" gorm:"uniqueIndex;type:varchar(32);not null"`
	UserID          string          `json:"userId" gorm:"type:varchar(36);index;not null"`
	Items           []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingAddress Address         `json:"shippingAddress" gorm:"embedded;embeddedPrefix:shipping_"`
	ShippingMethod  string          `json:"shippingMethod" gorm:"type:varchar(20)"`
	Payment         Payment         `json:"payment" gorm:"embedded;embeddedPrefix:payment_"`
	Subtotal        decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null"`
	ShippingFee     decimal.Decimal `json:"shippingFee" gorm:"type:decimal(12,2);not null"`
	Tax             decimal.Decimal `json:"tax" gorm:"type:decimal(12,2);not null"`
	Discount        decimal.Decimal `json:"discount" gorm:"type:decimal(12,2);not null"`
	Total           decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(20);index;not null"`
	TrackingNumber  string          `json:"trackingNumber,omitempty" gorm:"type:varchar(64)"`
	Notes           string          `json:"notes,omitempty" gorm:"type:varchar(500)"`

	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	ShippedAt   *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
	RefundedAt  *time.Time `json:"refundedAt,omitempty"`

	// Durable per-order ledger guards.
	InventoryCommitted bool `json:"inventoryCommitted" gorm:"not null"`
	InventoryRestored  bool `json:"inventoryRestored" gorm:"not null"`

	Version   int       `json:"-" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Totals holds the monetary fields of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// ComputeTotals derives subtotal and total from the line items and the given charges.
// Every amount is rounded to 2 decimal places before the total is summed, so the stored
// fields satisfy total == subtotal + shippingFee + tax - discount exactly.
func ComputeTotals(items []OrderItem, shippingFee, tax, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	t := Totals{
		Subtotal:    subtotal.Round(2),
		ShippingFee: shippingFee.Round(2),
		Tax:         tax.Round(2),
		Discount:    discount.Round(2),
	}
	t.Total = t.Subtotal.Add(t.ShippingFee).Add(t.Tax).Sub(t.Discount)
	return t
}

// ApplyTotals copies t onto the order.
func (o *Order) ApplyTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.ShippingFee = t.ShippingFee
	o.Tax = t.Tax
	o.Discount = t.Discount
	o.Total = t.Total
}

// TotalsConsistent checks the monetary invariant to 2 decimal places.
func (o *Order) TotalsConsistent() bool {
	expected := o.Subtotal.Add(o.ShippingFee).Add(o.Tax).Sub(o.Discount).Round(2)
	return o.Total.Round(2).Equal(expected)
}

// RemainingRefundable is the captured amount not yet refunded.
func (o *Order) RemainingRefundable() decimal.Decimal {
	return o.Total.Sub(o.Payment.RefundAmount)
}

// QuantityOf sums the ordered quantity of productID across line items.
func (o *Order) QuantityOf(productID string) int {
	qty := 0
	for _, item := range o.Items {
		if item.ProductID == productID {
			qty += item.Quantity
		}
	}
	return qty
}

// NewOrderNumber returns a human-readable order number such as FS-20260115-1A2B3C4D.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("FS-%s-%s", now.UTC().Format("20060102"), suffix)
}
