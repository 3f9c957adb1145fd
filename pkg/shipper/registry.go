package shipper

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry manages registered quoting carriers.
type Registry struct {
	shippers map[string]Shipper
	mu       sync.RWMutex
}

// NewRegistry creates a new shipper registry.
func NewRegistry() *Registry {
	return &Registry{
		shippers: make(map[string]Shipper),
	}
}

// Register adds a shipper to the registry, replacing any shipper with the same name.
func (r *Registry) Register(s Shipper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shippers[s.Name()] = s
}

// Get returns a shipper by name.
func (r *Registry) Get(name string) (Shipper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.shippers[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCarrierNotFound, name)
}

// Names returns the names of all registered shippers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.shippers))
	for name := range r.shippers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered shippers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shippers)
}

// Quote fetches quotes from the named carriers in parallel, or from every
// registered carrier when carriers is empty. Responses are returned in
// carrier name order so callers see a stable merge order. A failing
// carrier contributes an error but does not fail the others.
func (r *Registry) Quote(ctx context.Context, req *QuoteRequest, carriers ...string) ([]*QuoteResponse, []error) {
	if len(carriers) == 0 {
		carriers = r.Names()
	} else {
		carriers = append([]string(nil), carriers...)
		sort.Strings(carriers)
	}
	if len(carriers) == 0 {
		return nil, []error{ErrCarrierNotFound}
	}

	responses := make([]*QuoteResponse, len(carriers))
	failures := make([]error, len(carriers))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range carriers {
		g.Go(func() error {
			s, err := r.Get(name)
			if err != nil {
				failures[i] = err
				return nil
			}
			resp, err := s.GetQuote(ctx, req)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", name, err)
				return nil // keep collecting from the other carriers
			}
			if resp != nil && resp.Carrier == "" {
				resp.Carrier = name
			}
			responses[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	results := make([]*QuoteResponse, 0, len(carriers))
	errs := make([]error, 0)
	for i := range carriers {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		if responses[i] != nil {
			results = append(results, responses[i])
		}
	}
	return results, errs
}
