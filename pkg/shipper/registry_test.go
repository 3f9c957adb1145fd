package shipper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/shipperhq/shopware-shipperhq/pkg/shipper"
	"github.com/shipperhq/shopware-shipperhq/pkg/shipper/mock"
)

func testQuoteRequest() *shipper.QuoteRequest {
	return &shipper.QuoteRequest{
		Destination: shipper.Address{
			Street:      "456 Oak Ave",
			City:        "Austin",
			RegionCode:  "TX",
			PostalCode:  "78701",
			CountryCode: "US",
		},
		Items: []shipper.Item{
			{SKU: "sku-1", Quantity: 2, Weight: 1.5, WeightUnit: shipper.WeightKG, UnitPrice: 10},
		},
		Currency: "USD",
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("fedex"))

	got, err := registry.Get("fedex")
	require.NoError(t, err, "shipper should be registered")
	assert.Equal(t, "fedex", got.Name())
}

func TestRegistry_Register_Override(t *testing.T) {
	registry := shipper.NewRegistry()

	registry.Register(mock.New("fedex"))
	registry.Register(mock.New("fedex"))
	assert.Equal(t, 1, registry.Count())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := shipper.NewRegistry()

	_, err := registry.Get("nonexistent")
	assert.True(t, errors.Is(err, shipper.ErrCarrierNotFound))
}

func TestRegistry_Names_Sorted(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("usps"))
	registry.Register(mock.New("fedex"))
	registry.Register(mock.New("ups"))

	assert.Equal(t, []string{"fedex", "ups", "usps"}, registry.Names())
}

func TestRegistry_Quote_AllCarriers(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("ups"))
	registry.Register(mock.New("fedex"))

	results, errs := registry.Quote(context.Background(), testQuoteRequest())

	assert.Empty(t, errs)
	require.Len(t, results, 2)
	assert.Equal(t, "fedex", results[0].Carrier, "results follow carrier name order")
	assert.Equal(t, "ups", results[1].Carrier)
	for _, result := range results {
		assert.NotEmpty(t, result.QuoteID)
		assert.NotEmpty(t, result.Rates)
	}
}

func TestRegistry_Quote_Empty(t *testing.T) {
	registry := shipper.NewRegistry()

	results, errs := registry.Quote(context.Background(), testQuoteRequest())

	assert.Empty(t, results)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], shipper.ErrCarrierNotFound)
}

func TestRegistry_Quote_SelectedCarriers(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("fedex"))
	registry.Register(mock.New("ups"))
	registry.Register(mock.New("usps"))

	results, errs := registry.Quote(context.Background(), testQuoteRequest(), "usps", "fedex")

	assert.Empty(t, errs)
	require.Len(t, results, 2)
	assert.Equal(t, "fedex", results[0].Carrier)
	assert.Equal(t, "usps", results[1].Carrier)
}

func TestRegistry_Quote_PartialFailure(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("fedex"))
	registry.Register(mock.New("ups", mock.WithError(shipper.ErrServiceUnavailable)))

	results, errs := registry.Quote(context.Background(), testQuoteRequest())

	require.Len(t, results, 1)
	assert.Equal(t, "fedex", results[0].Carrier)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], shipper.ErrServiceUnavailable)
	assert.Contains(t, errs[0].Error(), "ups")
}

func TestRegistry_Quote_UnknownCarrier(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("fedex"))

	results, errs := registry.Quote(context.Background(), testQuoteRequest(), "nonexistent")

	assert.Empty(t, results)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], shipper.ErrCarrierNotFound)
}

func TestMock_PriceScalesWithWeight(t *testing.T) {
	carrier := mock.New("fedex", mock.WithMethods(mock.Method{Code: "ground", BasePrice: 10, PerKG: 2}))

	resp, err := carrier.GetQuote(context.Background(), testQuoteRequest())

	require.NoError(t, err)
	require.Len(t, resp.Rates, 1)
	assert.InDelta(t, 16.0, resp.Rates[0].TotalPrice.Amount, 0.0001)
	assert.Equal(t, "USD", resp.Rates[0].TotalPrice.Currency)
	assert.Equal(t, int64(1), carrier.Calls())
}
