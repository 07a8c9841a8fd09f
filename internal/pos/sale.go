package pos

import (
	"fmt"
)

// LineItem is one product line on a sale.
type LineItem struct {
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Sale is a sale transaction recorded at the register.
//
// CreatedAt carries the register's clock in unix milliseconds and is part of
// the duplicate-detection fingerprint, so it must be set at creation time and
// never rewritten afterwards.
type Sale struct {
	ID            string     `json:"id,omitempty"`
	CustomerName  string     `json:"customerName,omitempty"`
	Items         []LineItem `json:"items,omitempty"`
	Total         float64    `json:"totalPrice"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	Paid          bool       `json:"paid"`
	Voided        bool       `json:"voided"`
	CreatedAt     int64      `json:"createdAt"`
}

// RecordID implements Record.
func (s *Sale) RecordID() string { return s.ID }

// SetRecordID implements Record.
func (s *Sale) SetRecordID(id string) { s.ID = id }

// Collection implements Record.
func (s *Sale) Collection() string { return CollectionPayments }

// Fingerprint implements Record.
//
// A sale is identified by its creation timestamp, customer name and total.
// This is what the sync engine matches against remote records to detect a
// creation that already went through on a previous, partially failed sync.
func (s *Sale) Fingerprint() string {
	return fmt.Sprintf("%d|%s|%.2f", s.CreatedAt, s.CustomerName, s.Total)
}

// Validate implements Record.
func (s *Sale) Validate() error {
	if s.CreatedAt <= 0 {
		return fmt.Errorf("sale: createdAt must be set")
	}
	if s.Total < 0 {
		return fmt.Errorf("sale: total cannot be negative")
	}
	for i, item := range s.Items {
		if item.Name == "" {
			return fmt.Errorf("sale: item %d has no name", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("sale: item %d has non-positive quantity", i)
		}
	}
	return nil
}
