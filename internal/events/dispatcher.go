// Package events turns cart and checkout events into rate cache
// invalidations.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shipperhq/shopware-shipperhq/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Event types that invalidate a shopper's cached rates.
const (
	CartCreated             = "cart.created"
	CartChanged             = "cart.changed"
	LineItemAdded           = "line_item.added"
	LineItemRemoved         = "line_item.removed"
	LineItemQuantityChanged = "line_item.quantity_changed"
	OrderPlaced             = "order.placed"
	AddressChanged          = "address.changed"
)

var invalidating = map[string]struct{}{
	CartCreated:             {},
	CartChanged:             {},
	LineItemAdded:           {},
	LineItemRemoved:         {},
	LineItemQuantityChanged: {},
	OrderPlaced:             {},
	AddressChanged:          {},
}

// ErrMalformedEvent marks events that can never be handled. Consumers drop
// them instead of retrying.
var ErrMalformedEvent = errors.New("malformed event")

// Event is a cart or checkout event for one shopper session.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Invalidator clears a session's cached rates.
type Invalidator interface {
	ClearCache(ctx context.Context, sessionID string) error
}

// Dispatcher routes events to the rate cache.
type Dispatcher struct {
	cache   Invalidator
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(cache Invalidator, logger *otelzap.Logger, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// Handles reports whether eventType invalidates cached rates.
func Handles(eventType string) bool {
	_, ok := invalidating[eventType]
	return ok
}

// Dispatch clears the session's rates for every invalidating event type.
// Unknown types are logged and ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if ev.SessionID == "" {
		d.record(ev.Type, "malformed")
		return fmt.Errorf("%w: missing session id", ErrMalformedEvent)
	}
	if !Handles(ev.Type) {
		d.logger.Ctx(ctx).Debug("Ignoring event", zap.String("type", ev.Type))
		d.record(ev.Type, "ignored")
		return nil
	}

	if err := d.cache.ClearCache(ctx, ev.SessionID); err != nil {
		d.record(ev.Type, "error")
		return fmt.Errorf("clearing rates for %s: %w", ev.Type, err)
	}

	d.logger.Ctx(ctx).Debug("Rate cache invalidated",
		zap.String("type", ev.Type),
		zap.String("session_id", ev.SessionID),
	)
	d.record(ev.Type, "invalidated")
	return nil
}

// DispatchJSON decodes a JSON event and dispatches it.
func (d *Dispatcher) DispatchJSON(ctx context.Context, raw []byte) error {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.record("unknown", "malformed")
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return d.Dispatch(ctx, ev)
}

func (d *Dispatcher) record(eventType, outcome string) {
	if d.metrics == nil {
		return
	}
	if !Handles(eventType) {
		// keep label cardinality bounded
		eventType = "other"
	}
	d.metrics.RecordEvent(eventType, outcome)
}
