package pos

import (
	"fmt"
)

// Product is an inventory item tracked by the back office.
type Product struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
	UpdatedAt int64   `json:"updatedAt,omitempty"`
}

// RecordID implements Record.
func (p *Product) RecordID() string { return p.ID }

// SetRecordID implements Record.
func (p *Product) SetRecordID(id string) { p.ID = id }

// Collection implements Record.
func (p *Product) Collection() string { return CollectionProducts }

// Fingerprint implements Record. Products are identified by name and SKU.
func (p *Product) Fingerprint() string {
	return fmt.Sprintf("%s|%s", p.Name, p.SKU)
}

// Validate implements Record.
func (p *Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("product: name is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("product: price cannot be negative")
	}
	if p.Stock < 0 {
		return fmt.Errorf("product: stock cannot be negative")
	}
	return nil
}
