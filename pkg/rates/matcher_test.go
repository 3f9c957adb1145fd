package rates_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(methods ...rates.ShippingMethod) (*rates.Matcher, *stubMethods) {
	lookup := &stubMethods{methods: map[string]rates.ShippingMethod{}}
	for _, m := range methods {
		lookup.methods[m.ID] = m
	}
	return rates.NewMatcher(lookup, testLogger()), lookup
}

func TestMatcher_DirectIDWins(t *testing.T) {
	matcher, lookup := newTestMatcher(fedexCustomFieldMethod())
	table := rates.RateTable{
		"m1":    {Price: 7, CarrierCode: "ups", MethodCode: "express"},
		"fedex": {Price: 12.5, CarrierCode: "fedex", MethodCode: "ground"},
	}

	match, ok := matcher.Find(context.Background(), "m1", table)
	require.True(t, ok)
	assert.Equal(t, 7.0, match.Record.Price)
	assert.Equal(t, "direct_id", match.Tier)
	assert.Zero(t, lookup.lookups.Load(), "descriptor must not be resolved when the id matches")
}

func TestMatcher_CustomFieldFallback(t *testing.T) {
	matcher, _ := newTestMatcher(fedexCustomFieldMethod())
	table := rates.RateTable{
		"fedex": {Price: 12.5, CarrierCode: "FedEx", MethodCode: "ground"},
	}

	price, ok := matcher.FindRateForMethod(context.Background(), "m1", table)
	require.True(t, ok)
	assert.Equal(t, 12.5, price)
}

func TestMatcher_TechnicalNameFallback(t *testing.T) {
	matcher, _ := newTestMatcher(rates.ShippingMethod{
		ID:            "m2",
		TechnicalName: "shqfedex-ground",
		Active:        true,
	})
	table := rates.RateTable{
		"ups_ground":   {Price: 9, CarrierCode: "ups", MethodCode: "ground"},
		"fedex_ground": {Price: 11, CarrierCode: "FEDEX", MethodCode: "ground"},
	}

	match, ok := matcher.Find(context.Background(), "m2", table)
	require.True(t, ok)
	assert.Equal(t, "technical_name", match.Tier)
	assert.Equal(t, "fedex_ground", match.Key)
	assert.Equal(t, 11.0, match.Record.Price)
}

func TestMatcher_CustomFieldsBeforeTechnicalName(t *testing.T) {
	method := fedexCustomFieldMethod()
	method.TechnicalName = "shqups-express"
	matcher, _ := newTestMatcher(method)
	table := rates.RateTable{
		"a": {Price: 30, CarrierCode: "ups", MethodCode: "express"},
		"b": {Price: 12.5, CarrierCode: "fedex", MethodCode: "ground"},
	}

	match, ok := matcher.Find(context.Background(), "m1", table)
	require.True(t, ok)
	assert.Equal(t, "custom_fields", match.Tier)
	assert.Equal(t, 12.5, match.Record.Price)
}

func TestMatcher_MethodCodeCaseSensitiveByDefault(t *testing.T) {
	matcher, _ := newTestMatcher(fedexCustomFieldMethod())
	table := rates.RateTable{
		"fedex": {Price: 12.5, CarrierCode: "fedex", MethodCode: "GROUND"},
	}

	_, ok := matcher.FindRateForMethod(context.Background(), "m1", table)
	assert.False(t, ok)
}

func TestMatcher_MethodCaseInsensitiveOption(t *testing.T) {
	lookup := &stubMethods{methods: map[string]rates.ShippingMethod{"m1": fedexCustomFieldMethod()}}
	matcher := rates.NewMatcher(lookup, testLogger(), rates.WithMethodCaseInsensitive(true))
	table := rates.RateTable{
		"fedex": {Price: 12.5, CarrierCode: "fedex", MethodCode: "GROUND"},
	}

	price, ok := matcher.FindRateForMethod(context.Background(), "m1", table)
	require.True(t, ok)
	assert.Equal(t, 12.5, price)
}

func TestMatcher_FirstMatchInKeyOrder(t *testing.T) {
	matcher, _ := newTestMatcher(fedexCustomFieldMethod())
	table := rates.RateTable{
		"z": {Price: 20, CarrierCode: "fedex", MethodCode: "ground"},
		"a": {Price: 10, CarrierCode: "fedex", MethodCode: "ground"},
	}

	for range 5 {
		match, ok := matcher.Find(context.Background(), "m1", table)
		require.True(t, ok)
		assert.Equal(t, "a", match.Key)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	matcher, _ := newTestMatcher(fedexCustomFieldMethod())
	table := rates.RateTable{
		"ups_ground": {Price: 9, CarrierCode: "ups", MethodCode: "ground"},
	}

	_, ok := matcher.FindRateForMethod(context.Background(), "m1", table)
	assert.False(t, ok)

	_, ok = matcher.FindRateForMethod(context.Background(), "unknown", table)
	assert.False(t, ok)
}

func TestMatcher_LookupFailureStillMatchesDirectID(t *testing.T) {
	lookup := &stubMethods{err: errors.New("db down")}
	matcher := rates.NewMatcher(lookup, testLogger())
	table := rates.RateTable{"m1": {Price: 4, CarrierCode: "fedex", MethodCode: "ground"}}

	price, ok := matcher.FindRateForMethod(context.Background(), "m1", table)
	require.True(t, ok)
	assert.Equal(t, 4.0, price)

	_, ok = matcher.FindRateForMethod(context.Background(), "m9", table)
	assert.False(t, ok)
}

func TestMatcher_NilLookup(t *testing.T) {
	matcher := rates.NewMatcher(nil, testLogger())

	_, ok := matcher.FindRateForMethod(context.Background(), "m1", rates.RateTable{
		"fedex": {Price: 12.5, CarrierCode: "fedex", MethodCode: "ground"},
	})
	assert.False(t, ok)
}

func TestMatcher_CustomTiers(t *testing.T) {
	lookup := &stubMethods{methods: map[string]rates.ShippingMethod{"m1": fedexCustomFieldMethod()}}
	matcher := rates.NewMatcher(lookup, testLogger(), rates.WithTiers(rates.DirectIDTier))

	_, ok := matcher.FindRateForMethod(context.Background(), "m1", rates.RateTable{
		"fedex": {Price: 12.5, CarrierCode: "fedex", MethodCode: "ground"},
	})
	assert.False(t, ok)
}

func TestParseTechnicalName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		carrier string
		method  string
		ok      bool
	}{
		{name: "valid", input: "shqfedex-ground", carrier: "fedex", method: "ground", ok: true},
		{name: "missing prefix", input: "fedex-ground"},
		{name: "no dash", input: "shqfedex"},
		{name: "two dashes", input: "shqfedex-ground-saver"},
		{name: "empty carrier", input: "shq-ground"},
		{name: "empty method", input: "shqfedex-"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carrier, method, ok := rates.ParseTechnicalName(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.carrier, carrier)
			assert.Equal(t, tt.method, method)
		})
	}
}
