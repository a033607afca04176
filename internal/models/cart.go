package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a single line in a cart. Price is snapshotted when the line is created.
type CartItem struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	CartID       string          `json:"-" gorm:"type:varchar(36);index;not null"`
	ProductID    string          `json:"productId" gorm:"type:varchar(36);not null"`
	Quantity     int             `json:"quantity" gorm:"not null"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Size         string          `json:"size,omitempty" gorm:"type:varchar(20)"`
	Vase         string          `json:"vase,omitempty" gorm:"type:varchar(50)"`
	PersonalNote string          `json:"personalNote,omitempty" gorm:"type:varchar(500)"`
}

// Cart is the per-user singleton cart aggregate.
type Cart struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string          `json:"userId" gorm:"uniqueIndex;type:varchar(36);not null"`
	Items     []CartItem      `json:"items" gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	Subtotal  decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null"`
	Total     decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Merge adds item to the cart. An existing line for the same product absorbs the quantity;
// otherwise the item is appended. Totals are recomputed.
func (c *Cart) Merge(item CartItem) {
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			c.Recalculate()
			return
		}
	}
	item.CartID = c.ID
	c.Items = append(c.Items, item)
	c.Recalculate()
}

// Recalculate recomputes subtotal and total from the lines.
func (c *Cart) Recalculate() {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	c.Subtotal = subtotal.Round(2)
	c.Total = c.Subtotal
}

// Quantity returns the quantity of productID in the cart, or 0.
func (c *Cart) Quantity(productID string) int {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}
