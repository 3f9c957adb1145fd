// Package mock provides a mock carrier implementation for tests and local runs.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shipperhq/shopware-shipperhq/pkg/shipper"
)

// Method is a canned rate the mock carrier quotes.
type Method struct {
	Code  string
	Title string
	// BasePrice is charged per shipment, PerKG is added per unit of total weight.
	BasePrice float64
	PerKG     float64
	Days      int
}

// Client is a mock carrier for testing.
type Client struct {
	name    string
	methods []Method
	err     error
	latency time.Duration
	calls   atomic.Int64
}

// Option configures a mock Client.
type Option func(*Client)

// WithMethods replaces the default methods quoted by the mock.
func WithMethods(methods ...Method) Option {
	return func(c *Client) {
		c.methods = methods
	}
}

// WithError makes every quote fail with err.
func WithError(err error) Option {
	return func(c *Client) {
		c.err = err
	}
}

// WithLatency delays every quote, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(c *Client) {
		c.latency = d
	}
}

// New creates a new mock carrier. Without options it quotes a "ground" and
// an "express" method.
func New(name string, opts ...Option) *Client {
	c := &Client{
		name: name,
		methods: []Method{
			{Code: "ground", Title: "Ground", BasePrice: 9.5, PerKG: 0.5, Days: 5},
			{Code: "express", Title: "Express", BasePrice: 24, PerKG: 1.25, Days: 2},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// Calls returns how many quotes were requested.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// GetQuote returns mock shipping quotes.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	c.calls.Add(1)

	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	now := time.Now()
	weight := req.TotalWeight()

	rates := make([]shipper.RateOption, 0, len(c.methods))
	for _, m := range c.methods {
		dispatch := now.Add(24 * time.Hour)
		delivery := now.Add(time.Duration(m.Days) * 24 * time.Hour)
		rates = append(rates, shipper.RateOption{
			RateID:       fmt.Sprintf("%s-%s-%s", c.name, m.Code, uuid.New().String()[:8]),
			Carrier:      c.name,
			CarrierTitle: c.name,
			MethodCode:   m.Code,
			MethodTitle:  m.Title,
			TotalPrice:   shipper.Money{Amount: m.BasePrice + m.PerKG*weight, Currency: currency},
			TransitDays:  m.Days,
			DeliveryDate: &delivery,
			DispatchDate: &dispatch,
		})
	}

	return &shipper.QuoteResponse{
		QuoteID:   fmt.Sprintf("%s-quote-%s", c.name, uuid.New().String()),
		Carrier:   c.name,
		Rates:     rates,
		ExpiresAt: now.Add(30 * time.Minute),
	}, nil
}

var _ shipper.Shipper = (*Client)(nil)
