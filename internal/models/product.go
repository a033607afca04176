package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is the stock block of a product. It is mutated only by the inventory ledger.
type Inventory struct {
	Stock             int  `json:"stock" gorm:"not null" validate:"gte=0"`
	LowStockThreshold int  `json:"lowStockThreshold" gorm:"not null" validate:"gte=0"`
	IsAvailable       bool `json:"isAvailable" gorm:"not null"` // always stock > 0
}

// Product represents a product in the store.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name        string          `json:"name" gorm:"type:varchar(100);not null" validate:"required,min=3,max=100"`
	Description string          `json:"description" validate:"omitempty,max=500"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Inventory   Inventory       `json:"inventory" gorm:"embedded;embeddedPrefix:inventory_"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// LowOnStock reports whether the product has reached its low-stock threshold.
func (p *Product) LowOnStock() bool {
	return p.Inventory.Stock <= p.Inventory.LowStockThreshold
}
