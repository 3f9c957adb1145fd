package shipper

import (
	"time"
)

// WeightUnit represents weight measurement unit.
type WeightUnit string

// WeightKG is the unit rates quote item weights in.
const WeightKG WeightUnit = "kg"

// Address is the destination a quote is requested for.
type Address struct {
	Street      string
	City        string
	RegionCode  string // e.g., "CA", "TX", "ON"
	PostalCode  string
	CountryCode string // ISO 3166-1 alpha-2, e.g., "US", "CA"
}

// Item is a single product line quoted by a carrier.
type Item struct {
	SKU        string
	Quantity   int
	Weight     float64
	WeightUnit WeightUnit
	UnitPrice  float64
}

// Money represents a monetary amount.
type Money struct {
	Amount   float64
	Currency string
}

// RateOption is one carrier+method price returned by a quote.
type RateOption struct {
	RateID       string
	Carrier      string
	CarrierTitle string
	MethodCode   string
	MethodTitle  string
	TotalPrice   Money
	TransitDays  int
	DeliveryDate *time.Time
	DispatchDate *time.Time
}

// QuoteRequest is the request for getting shipping quotes.
type QuoteRequest struct {
	Destination Address
	Items       []Item
	Currency    string
}

// TotalWeight sums item weight multiplied by quantity.
func (r *QuoteRequest) TotalWeight() float64 {
	var total float64
	for _, it := range r.Items {
		total += it.Weight * float64(it.Quantity)
	}
	return total
}

// QuoteResponse is the response from getting shipping quotes.
type QuoteResponse struct {
	QuoteID   string
	Carrier   string
	Rates     []RateOption
	ExpiresAt time.Time
}
