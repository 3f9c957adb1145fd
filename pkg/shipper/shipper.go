// Package shipper provides an abstraction layer over the carriers that
// answer rate quotes for a cart.
package shipper

import (
	"context"
)

// Shipper defines the interface that every quoting carrier must implement.
type Shipper interface {
	// Name returns the carrier code (e.g., "fedex", "ups", "usps").
	Name() string

	// GetQuote returns the rate options the carrier offers for a shipment.
	GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)
}
