package rates_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func testLogger() *otelzap.Logger {
	return otelzap.New(zap.NewNop())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubProvider returns a fixed table and counts calls.
type stubProvider struct {
	mu    sync.Mutex
	rates rates.RateTable
	err   error
	block bool
	calls atomic.Int32
}

func (p *stubProvider) FetchBatchRates(ctx context.Context, _ *rates.Cart, _ *rates.ShopperContext) (rates.RateTable, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rates, p.err
}

func (p *stubProvider) setRates(t rates.RateTable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates = t
}

// stubMethods is a MethodLookup backed by a map. It counts lookups.
type stubMethods struct {
	methods map[string]rates.ShippingMethod
	err     error
	lookups atomic.Int32
}

func (s *stubMethods) ShippingMethod(_ context.Context, id string) (*rates.ShippingMethod, error) {
	s.lookups.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	m, ok := s.methods[id]
	if !ok {
		return nil, rates.ErrMethodNotFound
	}
	return &m, nil
}

func (s *stubMethods) ActiveMethods(_ context.Context) ([]rates.ShippingMethod, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]rates.ShippingMethod, 0, len(s.methods))
	for _, m := range s.methods {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func fedexCustomFieldMethod() rates.ShippingMethod {
	return rates.ShippingMethod{
		ID:            "m1",
		Name:          "FedEx Ground",
		TechnicalName: "shipperhq_fedex",
		Active:        true,
		CustomFields: map[string]any{
			rates.CustomFieldCarrierCode: "fedex",
			rates.CustomFieldMethodCode:  "ground",
		},
	}
}

func testCart() *rates.Cart {
	return &rates.Cart{
		Token: "cart-1",
		LineItems: []rates.LineItem{
			{ID: "b", Type: rates.LineItemTypeProduct, Quantity: 1, TotalPrice: 10, Weight: 1},
			{ID: "a", Type: rates.LineItemTypeProduct, Quantity: 2, TotalPrice: 5, Weight: 0.5},
		},
	}
}

func testShopper(sessionID string) *rates.ShopperContext {
	return &rates.ShopperContext{
		SessionID: sessionID,
		Customer: &rates.Customer{
			ID: "cust-1",
			ActiveShippingAddress: &rates.Address{
				CountryISO: "US",
				RegionCode: "TX",
				PostalCode: "78701",
				City:       "Austin",
				Street:     "456 Oak Ave",
			},
		},
		CurrencyID:      "cur-usd",
		Currency:        "USD",
		CustomerGroupID: "grp-default",
	}
}

type cacheFixture struct {
	cache    *rates.RateCache
	storage  *rates.RateStorage
	provider *stubProvider
	methods  *stubMethods
	clock    *fakeClock
}

func newCacheFixture(table rates.RateTable, opts ...rates.Option) *cacheFixture {
	clock := newFakeClock()
	provider := &stubProvider{rates: table}
	methods := &stubMethods{methods: map[string]rates.ShippingMethod{}}
	storage := rates.NewRateStorage(rates.NewMemorySessions(time.Hour), testLogger(), rates.WithStorageClock(clock.Now))
	matcher := rates.NewMatcher(methods, testLogger())

	opts = append([]rates.Option{rates.WithClock(clock.Now)}, opts...)
	return &cacheFixture{
		cache:    rates.NewRateCache(storage, provider, matcher, testLogger(), opts...),
		storage:  storage,
		provider: provider,
		methods:  methods,
		clock:    clock,
	}
}
