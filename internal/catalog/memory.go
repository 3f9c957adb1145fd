// Package catalog stores the platform shipping methods that rates are mapped
// to and matched against.
package catalog

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
)

// methodNamespace derives stable ids for seeded methods.
var methodNamespace = uuid.MustParse("6f1c2a57-3f0e-4d0b-9a55-6b7e1f3c2d10")

// MethodID returns the id a seeded method with technicalName gets.
func MethodID(technicalName string) string {
	return uuid.NewSHA1(methodNamespace, []byte(technicalName)).String()
}

// Memory is an in-process catalog.
type Memory struct {
	mu      sync.RWMutex
	methods map[string]rates.ShippingMethod
}

// NewMemory creates a catalog holding methods.
func NewMemory(methods ...rates.ShippingMethod) *Memory {
	c := &Memory{methods: make(map[string]rates.ShippingMethod, len(methods))}
	for _, m := range methods {
		c.methods[m.ID] = m
	}
	return c
}

// Upsert stores m, replacing any method with the same id.
func (c *Memory) Upsert(m rates.ShippingMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[m.ID] = m
}

// ShippingMethod implements rates.MethodLookup.
func (c *Memory) ShippingMethod(_ context.Context, id string) (*rates.ShippingMethod, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.methods[id]
	if !ok {
		return nil, rates.ErrMethodNotFound
	}
	m.CustomFields = maps.Clone(m.CustomFields)
	return &m, nil
}

// ActiveMethods implements rates.MethodCatalog. Only active methods with a
// ShipperHQ technical name are listed, ordered by id.
func (c *Memory) ActiveMethods(_ context.Context) ([]rates.ShippingMethod, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]rates.ShippingMethod, 0, len(c.methods))
	for _, m := range c.methods {
		if !m.Active || !strings.HasPrefix(m.TechnicalName, rates.TechnicalNamePrefix) {
			continue
		}
		m.CustomFields = maps.Clone(m.CustomFields)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// All returns every method, active or not, ordered by id.
func (c *Memory) All() []rates.ShippingMethod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]rates.ShippingMethod, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SeedCarrier adds one active method per method code of carrier, named
// "shq<carrier>-<code>" and carrying the code custom fields.
func (c *Memory) SeedCarrier(carrier string, codes ...string) {
	for _, code := range codes {
		technical := rates.TechnicalNamePrefix + carrier + "-" + code
		c.Upsert(rates.ShippingMethod{
			ID:            MethodID(technical),
			Name:          strings.ToUpper(carrier) + " " + code,
			TechnicalName: technical,
			Active:        true,
			CustomFields: map[string]any{
				rates.CustomFieldCarrierCode: carrier,
				rates.CustomFieldMethodCode:  code,
			},
		})
	}
}

var (
	_ rates.MethodLookup  = (*Memory)(nil)
	_ rates.MethodCatalog = (*Memory)(nil)
)
