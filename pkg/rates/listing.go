package rates

import (
	"context"
	"fmt"
	"maps"
)

// CallPurpose says why shipping methods are being listed.
type CallPurpose int

const (
	// PurposeListing is the initial listing of every candidate method.
	PurposeListing CallPurpose = iota
	// PurposeValidation keeps only the methods that have a rate for the cart.
	PurposeValidation
)

func (p CallPurpose) String() string {
	switch p {
	case PurposeListing:
		return "listing"
	case PurposeValidation:
		return "validation"
	default:
		return fmt.Sprintf("CallPurpose(%d)", int(p))
	}
}

// ParseCallPurpose parses "listing" or "validation".
func ParseCallPurpose(s string) (CallPurpose, error) {
	switch s {
	case "listing", "":
		return PurposeListing, nil
	case "validation":
		return PurposeValidation, nil
	default:
		return 0, fmt.Errorf("unknown call purpose %q", s)
	}
}

// MethodFilter restricts shipping methods to those the cache can price.
type MethodFilter struct {
	cache *RateCache
}

// NewMethodFilter creates a MethodFilter over cache.
func NewMethodFilter(cache *RateCache) *MethodFilter {
	return &MethodFilter{cache: cache}
}

// Filter returns methods unchanged for PurposeListing. For PurposeValidation
// it drops methods without a rate and returns copies of the rest annotated
// with the rate, delivery and dispatch custom fields. Inputs are not modified.
func (f *MethodFilter) Filter(ctx context.Context, purpose CallPurpose, methods []ShippingMethod, cart *Cart, sc *ShopperContext) []ShippingMethod {
	if purpose != PurposeValidation {
		return methods
	}

	rates := f.cache.GetRates(ctx, cart, sc)
	if len(rates) == 0 {
		return []ShippingMethod{}
	}

	kept := make([]ShippingMethod, 0, len(methods))
	for _, m := range methods {
		match, ok := f.cache.matcher.Find(ctx, m.ID, rates)
		if !ok {
			continue
		}
		kept = append(kept, annotate(m, match.Record))
	}
	return kept
}

func annotate(m ShippingMethod, rec RateRecord) ShippingMethod {
	fields := make(map[string]any, len(m.CustomFields)+3)
	maps.Copy(fields, m.CustomFields)
	fields[CustomFieldRate] = rec.Price
	if rec.DeliveryDate != "" {
		fields[CustomFieldDeliveryDate] = rec.DeliveryDate
	}
	if rec.DispatchDate != "" {
		fields[CustomFieldDispatchDate] = rec.DispatchDate
	}
	m.CustomFields = fields
	return m
}
