package rates

import (
	"context"
	"errors"
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrMethodNotFound is returned by a MethodLookup for an unknown method id.
var ErrMethodNotFound = errors.New("shipping method not found")

// MethodLookup resolves shipping method descriptors by id.
type MethodLookup interface {
	ShippingMethod(ctx context.Context, id string) (*ShippingMethod, error)
}

// CodeComparer decides whether a rate record carries the given carrier and
// method codes. Carrier codes always compare case-insensitively.
type CodeComparer struct {
	MethodCaseInsensitive bool
}

// Matches reports whether rec has carrier and method.
func (c CodeComparer) Matches(rec RateRecord, carrier, method string) bool {
	if !strings.EqualFold(rec.CarrierCode, carrier) {
		return false
	}
	if c.MethodCaseInsensitive {
		return strings.EqualFold(rec.MethodCode, method)
	}
	return rec.MethodCode == method
}

// MatchInput is what a tier sees. Method is nil when the descriptor could
// not be resolved.
type MatchInput struct {
	MethodID string
	Method   *ShippingMethod
	Rates    RateTable
	Codes    CodeComparer
}

// Tier is one matching strategy. Tiers are pure and tried in order.
type Tier struct {
	Name string
	// NeedsMethod makes the matcher resolve the descriptor before calling Match.
	NeedsMethod bool
	Match       func(in MatchInput) (string, RateRecord, bool)
}

// DirectIDTier finds the rate keyed by the shipping method id.
var DirectIDTier = Tier{
	Name: "direct_id",
	Match: func(in MatchInput) (string, RateRecord, bool) {
		rec, ok := in.Rates[in.MethodID]
		return in.MethodID, rec, ok
	},
}

// CustomFieldTier matches the carrier/method codes held in the method's
// custom fields.
var CustomFieldTier = Tier{
	Name:        "custom_fields",
	NeedsMethod: true,
	Match: func(in MatchInput) (string, RateRecord, bool) {
		carrier, ok := in.Method.CustomString(CustomFieldCarrierCode)
		if !ok {
			return "", RateRecord{}, false
		}
		method, ok := in.Method.CustomString(CustomFieldMethodCode)
		if !ok {
			return "", RateRecord{}, false
		}
		return scanCodes(in, carrier, method)
	},
}

// TechnicalNameTier matches the codes encoded in "shq<carrier>-<method>".
var TechnicalNameTier = Tier{
	Name:        "technical_name",
	NeedsMethod: true,
	Match: func(in MatchInput) (string, RateRecord, bool) {
		carrier, method, ok := in.Method.CarrierMethod()
		if !ok {
			return "", RateRecord{}, false
		}
		return scanCodes(in, carrier, method)
	},
}

// DefaultTiers is the resolution order used by NewMatcher.
var DefaultTiers = []Tier{DirectIDTier, CustomFieldTier, TechnicalNameTier}

// scanCodes returns the first record, in key order, with the given codes.
func scanCodes(in MatchInput, carrier, method string) (string, RateRecord, bool) {
	for _, key := range in.Rates.Keys() {
		rec := in.Rates[key]
		if in.Codes.Matches(rec, carrier, method) {
			return key, rec, true
		}
	}
	return "", RateRecord{}, false
}

// Match is the outcome of a successful lookup.
type Match struct {
	Key    string
	Record RateRecord
	Tier   string
}

// Matcher resolves a shipping method id to a rate inside a RateTable.
type Matcher struct {
	methods MethodLookup
	tiers   []Tier
	codes   CodeComparer
	logger  *otelzap.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithTiers replaces the default tier order.
func WithTiers(tiers ...Tier) MatcherOption {
	return func(m *Matcher) {
		m.tiers = tiers
	}
}

// WithMethodCaseInsensitive compares method codes case-insensitively too.
func WithMethodCaseInsensitive(enabled bool) MatcherOption {
	return func(m *Matcher) {
		m.codes.MethodCaseInsensitive = enabled
	}
}

// NewMatcher creates a Matcher resolving descriptors through methods.
func NewMatcher(methods MethodLookup, logger *otelzap.Logger, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		methods: methods,
		tiers:   DefaultTiers,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindRateForMethod returns the price for methodID, or false when no tier
// matched. No match is an expected outcome, not an error.
func (m *Matcher) FindRateForMethod(ctx context.Context, methodID string, rates RateTable) (float64, bool) {
	match, ok := m.Find(ctx, methodID, rates)
	if !ok {
		return 0, false
	}
	return match.Record.Price, true
}

// Find runs the tiers in order and returns the first match.
func (m *Matcher) Find(ctx context.Context, methodID string, rates RateTable) (Match, bool) {
	in := MatchInput{MethodID: methodID, Rates: rates, Codes: m.codes}
	resolved := false

	for _, tier := range m.tiers {
		if tier.NeedsMethod {
			if !resolved {
				in.Method = m.resolve(ctx, methodID)
				resolved = true
			}
			if in.Method == nil {
				continue
			}
		}
		if key, rec, ok := tier.Match(in); ok {
			m.logger.Ctx(ctx).Debug("Found rate for shipping method",
				zap.String("method_id", methodID),
				zap.String("tier", tier.Name),
				zap.String("rate_key", key),
				zap.Float64("price", rec.Price),
			)
			matchOutcomes.WithLabelValues(tier.Name).Inc()
			return Match{Key: key, Record: rec, Tier: tier.Name}, true
		}
	}

	m.logNoRateFound(ctx, methodID, in.Method, rates)
	matchOutcomes.WithLabelValues("none").Inc()
	return Match{}, false
}

func (m *Matcher) resolve(ctx context.Context, methodID string) *ShippingMethod {
	if m.methods == nil {
		return nil
	}
	method, err := m.methods.ShippingMethod(ctx, methodID)
	if err != nil {
		m.logger.Ctx(ctx).Warn("Shipping method not resolvable",
			zap.String("method_id", methodID),
			zap.Error(err),
		)
		return nil
	}
	return method
}

func (m *Matcher) logNoRateFound(ctx context.Context, methodID string, method *ShippingMethod, rates RateTable) {
	available := make([]string, 0, len(rates))
	for _, key := range rates.Keys() {
		rec := rates[key]
		available = append(available, rec.CarrierCode+"/"+rec.MethodCode)
	}
	technicalName := ""
	if method != nil {
		technicalName = method.TechnicalName
	}
	m.logger.Ctx(ctx).Debug("No rate found for shipping method",
		zap.String("method_id", methodID),
		zap.String("technical_name", technicalName),
		zap.Strings("available_rates", available),
	)
}
