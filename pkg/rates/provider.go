package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shipperhq/shopware-shipperhq/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Provider fetches every available rate for a cart in one call.
type Provider interface {
	FetchBatchRates(ctx context.Context, cart *Cart, sc *ShopperContext) (RateTable, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, cart *Cart, sc *ShopperContext) (RateTable, error)

// FetchBatchRates calls f.
func (f ProviderFunc) FetchBatchRates(ctx context.Context, cart *Cart, sc *ShopperContext) (RateTable, error) {
	return f(ctx, cart, sc)
}

// MethodCatalog lists the shipping methods rates can be mapped to.
type MethodCatalog interface {
	ActiveMethods(ctx context.Context) ([]ShippingMethod, error)
}

// RegistryProvider quotes every registered carrier and keys the flattened
// rates by shipping method id where one can be mapped.
//
// A rate maps to the active method whose technical name is exactly
// "shq<carrier>-<method>", otherwise to the first method whose technical name
// is "shq<carrier>". Unmapped rates are keyed by CompositeKey.
type RegistryProvider struct {
	registry *shipper.Registry
	catalog  MethodCatalog
	logger   *otelzap.Logger
}

// NewRegistryProvider creates a RegistryProvider. catalog may be nil, in which
// case every rate is keyed by CompositeKey.
func NewRegistryProvider(registry *shipper.Registry, catalog MethodCatalog, logger *otelzap.Logger) *RegistryProvider {
	return &RegistryProvider{
		registry: registry,
		catalog:  catalog,
		logger:   logger,
	}
}

// FetchBatchRates implements Provider.
func (p *RegistryProvider) FetchBatchRates(ctx context.Context, cart *Cart, sc *ShopperContext) (RateTable, error) {
	req := buildQuoteRequest(cart, sc)

	responses, errs := p.registry.Quote(ctx, req)
	for _, err := range errs {
		p.logger.Ctx(ctx).Warn("Carrier quote failed",
			zap.Bool("retryable", shipper.IsRetryable(err)),
			zap.Error(err),
		)
	}
	if len(responses) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", shipper.ErrNoQuotes, errors.Join(errs...))
	}

	index := p.methodIndex(ctx)
	rates := make(RateTable)
	for _, resp := range responses {
		for _, opt := range resp.Rates {
			carrier := opt.Carrier
			if carrier == "" {
				carrier = resp.Carrier
			}
			if opt.MethodCode == "" || opt.TotalPrice.Amount < 0 {
				p.logger.Ctx(ctx).Debug("Skipping unusable rate",
					zap.String("carrier", carrier),
					zap.String("method", opt.MethodCode),
					zap.Float64("price", opt.TotalPrice.Amount),
				)
				continue
			}

			key := index.lookup(carrier, opt.MethodCode)
			if _, taken := rates[key]; taken {
				// a carrier-level method already holds a rate, keep this one addressable
				key = CompositeKey(carrier, opt.MethodCode)
			}
			rates[key] = toRecord(carrier, opt)
		}
	}
	return rates, nil
}

// methodIndex maps technical names to method ids. A catalog failure leaves
// the index empty.
func (p *RegistryProvider) methodIndex(ctx context.Context) methodIndex {
	index := methodIndex{}
	if p.catalog == nil {
		return index
	}
	methods, err := p.catalog.ActiveMethods(ctx)
	if err != nil {
		p.logger.Ctx(ctx).Warn("Shipping method catalog unavailable", zap.Error(err))
		return index
	}
	for _, m := range methods {
		if !m.Active || !strings.HasPrefix(m.TechnicalName, TechnicalNamePrefix) {
			continue
		}
		if _, seen := index[m.TechnicalName]; !seen {
			index[m.TechnicalName] = m.ID
		}
	}
	return index
}

type methodIndex map[string]string

func (idx methodIndex) lookup(carrier, method string) string {
	if id, ok := idx[TechnicalNamePrefix+carrier+"-"+method]; ok {
		return id
	}
	if id, ok := idx[TechnicalNamePrefix+carrier]; ok {
		return id
	}
	return CompositeKey(carrier, method)
}

func buildQuoteRequest(cart *Cart, sc *ShopperContext) *shipper.QuoteRequest {
	req := &shipper.QuoteRequest{}
	if sc != nil {
		req.Currency = sc.Currency
	}
	if addr := sc.ShippingAddress(); addr != nil {
		req.Destination = shipper.Address{
			Street:      addr.Street,
			City:        addr.City,
			RegionCode:  addr.RegionCode,
			PostalCode:  addr.PostalCode,
			CountryCode: addr.CountryISO,
		}
	}
	for _, li := range cart.ProductItems() {
		unit := 0.0
		if li.Quantity > 0 {
			unit = li.TotalPrice / float64(li.Quantity)
		}
		req.Items = append(req.Items, shipper.Item{
			SKU:        li.ID,
			Quantity:   li.Quantity,
			Weight:     li.Weight,
			WeightUnit: shipper.WeightKG,
			UnitPrice:  unit,
		})
	}
	return req
}

func toRecord(carrier string, opt shipper.RateOption) RateRecord {
	rec := RateRecord{
		Price:        opt.TotalPrice.Amount,
		CarrierCode:  carrier,
		MethodCode:   opt.MethodCode,
		Currency:     opt.TotalPrice.Currency,
		CarrierTitle: opt.CarrierTitle,
		MethodTitle:  opt.MethodTitle,
	}
	if opt.DeliveryDate != nil {
		rec.DeliveryDate = opt.DeliveryDate.Format(time.DateOnly)
	}
	if opt.DispatchDate != nil {
		rec.DispatchDate = opt.DispatchDate.Format(time.DateOnly)
	}
	return rec
}

var _ Provider = (*RegistryProvider)(nil)
