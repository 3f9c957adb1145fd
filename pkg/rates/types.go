// Package rates caches ShipperHQ rate tables per shopper session and
// resolves a shipping method to one rate inside a cached table.
package rates

import (
	"sort"
	"strings"
	"time"
)

// LineItemTypeProduct is the only line item type that affects rates.
const LineItemTypeProduct = "product"

// Custom field names carried by shipping methods managed by ShipperHQ.
const (
	CustomFieldCarrierCode  = "shipperhq_carrier_code"
	CustomFieldMethodCode   = "shipperhq_method_code"
	CustomFieldRate         = "shipperhq_rate"
	CustomFieldDeliveryDate = "shipperhq_delivery_date"
	CustomFieldDispatchDate = "shipperhq_dispatch_date"
)

// TechnicalNamePrefix marks shipping methods whose technical name encodes
// "<carrierCode>-<methodCode>".
const TechnicalNamePrefix = "shq"

// LineItem is one line of the cart.
type LineItem struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"totalPrice"`
	Weight     float64 `json:"weight"`
}

// Cart is a snapshot of the shopper's cart.
type Cart struct {
	Token     string     `json:"token"`
	LineItems []LineItem `json:"lineItems"`
}

// ProductItems returns the line items of type product, in cart order.
func (c *Cart) ProductItems() []LineItem {
	if c == nil {
		return nil
	}
	items := make([]LineItem, 0, len(c.LineItems))
	for _, li := range c.LineItems {
		if li.Type == LineItemTypeProduct {
			items = append(items, li)
		}
	}
	return items
}

// Address is a customer's shipping address.
type Address struct {
	CountryISO string `json:"countryIso"`
	RegionCode string `json:"regionCode"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Street     string `json:"street"`
}

// Customer is the logged-in shopper, if any.
type Customer struct {
	ID                    string   `json:"id"`
	ActiveShippingAddress *Address `json:"activeShippingAddress,omitempty"`
}

// ShopperContext carries everything about the shopper that can change rates,
// plus the session the cache is scoped to.
type ShopperContext struct {
	SessionID       string    `json:"sessionId"`
	Customer        *Customer `json:"customer,omitempty"`
	CurrencyID      string    `json:"currencyId"`
	Currency        string    `json:"currency"`
	CustomerGroupID string    `json:"customerGroupId"`
}

func (sc *ShopperContext) sessionID() string {
	if sc == nil {
		return ""
	}
	return sc.SessionID
}

// ShippingAddress returns the customer's active shipping address, or nil.
func (sc *ShopperContext) ShippingAddress() *Address {
	if sc == nil || sc.Customer == nil {
		return nil
	}
	return sc.Customer.ActiveShippingAddress
}

// RateRecord is a price quote for one carrier+method combination.
type RateRecord struct {
	Price        float64 `json:"price"`
	CarrierCode  string  `json:"carrierCode"`
	MethodCode   string  `json:"methodCode"`
	Currency     string  `json:"currency"`
	CarrierTitle string  `json:"carrierTitle,omitempty"`
	MethodTitle  string  `json:"methodTitle,omitempty"`
	DeliveryDate string  `json:"deliveryDate,omitempty"`
	DispatchDate string  `json:"dispatchDate,omitempty"`
}

// RateTable maps a rate identifier (a shipping method id or a
// carrier+method composite key) to its record.
type RateTable map[string]RateRecord

// Keys returns the table keys in lexicographic order. Scans over a table
// use this order so "first match" is stable between calls.
func (t RateTable) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompositeKey is the table key used for rates not mapped to a shipping method.
func CompositeKey(carrierCode, methodCode string) string {
	return carrierCode + "_" + methodCode
}

// CacheEntry is the value stored per cache key.
type CacheEntry struct {
	Timestamp int64     `json:"timestamp"`
	Rates     RateTable `json:"rates"`
}

// IsEmpty reports whether the entry holds no rates.
func (e CacheEntry) IsEmpty() bool {
	return len(e.Rates) == 0
}

// IsValid reports whether the entry is non-empty and younger than ttl.
func (e CacheEntry) IsValid(now time.Time, ttl time.Duration) bool {
	if e.IsEmpty() || e.Timestamp == 0 {
		return false
	}
	return now.Sub(time.Unix(e.Timestamp, 0)) < ttl
}

// ShippingMethod describes a platform shipping method. It is read-only input
// to matching.
type ShippingMethod struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	TechnicalName string         `json:"technicalName"`
	Active        bool           `json:"active"`
	CustomFields  map[string]any `json:"customFields,omitempty"`
}

// CustomString returns a non-empty string custom field.
func (m *ShippingMethod) CustomString(name string) (string, bool) {
	if m == nil || m.CustomFields == nil {
		return "", false
	}
	v, ok := m.CustomFields[name].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// CarrierMethod returns the carrier and method codes encoded in a technical
// name of the form "shq<carrierCode>-<methodCode>".
func (m *ShippingMethod) CarrierMethod() (carrier, method string, ok bool) {
	if m == nil {
		return "", "", false
	}
	return ParseTechnicalName(m.TechnicalName)
}

// ParseTechnicalName splits "shq<carrierCode>-<methodCode>". Names without the
// prefix, without exactly one dash, or with an empty part are rejected.
func ParseTechnicalName(name string) (carrier, method string, ok bool) {
	if !strings.HasPrefix(name, TechnicalNamePrefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(name, TechnicalNamePrefix), "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
