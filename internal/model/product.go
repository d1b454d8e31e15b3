package model

import "time"

// Product catalog item replicated from the stock service. IDs are owner-assigned.
type Product struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false;comment:product id assigned by stock service" json:"id"`
	Name         string    `gorm:"size:200;not null;comment:product name" json:"name"`
	SKU          *string   `gorm:"column:sku;size:64;index:idx_products_owner_sku,priority:2;comment:stock keeping unit, unique per store at the owner" json:"sku,omitempty"`
	Price        *float64  `gorm:"comment:unit price" json:"price,omitempty"`
	Description  *string   `gorm:"type:text;comment:description" json:"description,omitempty"`
	Image        *string   `gorm:"size:500;comment:image reference" json:"image,omitempty"`
	AvailableQty *int      `gorm:"comment:quantity available for sale" json:"available_qty,omitempty"`
	StockQty     *int      `gorm:"comment:total stock quantity" json:"stock_qty,omitempty"`
	OwnerID      int64     `gorm:"not null;index:idx_products_owner_sku,priority:1;comment:owning user id" json:"owner_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName set name
func (Product) TableName() string {
	return "products"
}

// InStock reports whether any quantity is available. Unknown quantity counts as not in stock.
func (p *Product) InStock() bool {
	return p.AvailableQty != nil && *p.AvailableQty > 0
}

// SKUCode returns the SKU, empty when the product has none
func (p *Product) SKUCode() string {
	if p.SKU == nil {
		return ""
	}
	return *p.SKU
}
