package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	// ErrNoActiveSession is returned by a SessionStore asked to open a session
	// without an id.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidEntry indicates a stored value could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Session is a per-shopper key/value scope. Other subsystems may share it,
// so RateStorage only touches keys carrying KeyPrefix.
type Session interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, last write wins.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key in the session.
	Keys(ctx context.Context) ([]string, error)
}

// SessionStore opens the session for a shopper.
type SessionStore interface {
	Open(ctx context.Context, sessionID string) (Session, error)
}

// RateStorage stores CacheEntry values in a shopper's session.
//
// Storage failures never surface to callers: an unavailable session is
// replaced by an ephemeral, unsaved scope and failed reads behave as misses.
type RateStorage struct {
	sessions SessionStore
	logger   *otelzap.Logger
	now      func() time.Time
}

// StorageOption configures a RateStorage.
type StorageOption func(*RateStorage)

// WithStorageClock sets the clock used to stamp entries.
func WithStorageClock(now func() time.Time) StorageOption {
	return func(s *RateStorage) {
		s.now = now
	}
}

// NewRateStorage creates a RateStorage over sessions.
func NewRateStorage(sessions SessionStore, logger *otelzap.Logger, opts ...StorageOption) *RateStorage {
	s := &RateStorage{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scope opens the session or degrades to a fresh ephemeral one.
func (s *RateStorage) scope(ctx context.Context, sessionID string) Session {
	session, err := s.sessions.Open(ctx, sessionID)
	if err != nil {
		s.logger.Ctx(ctx).Warn("Rate storage unavailable, using ephemeral scope",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		storageDegraded.Inc()
		return newMemorySession()
	}
	return session
}

// Has reports whether key is stored in the session.
func (s *RateStorage) Has(ctx context.Context, sessionID, key string) bool {
	_, ok, err := s.scope(ctx, sessionID).Get(ctx, key)
	if err != nil {
		s.logger.Ctx(ctx).Warn("Rate storage read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// Get returns the entry for key, or a zero entry ({timestamp: 0, rates: {}})
// when the key is absent or unreadable.
func (s *RateStorage) Get(ctx context.Context, sessionID, key string) CacheEntry {
	empty := CacheEntry{Rates: RateTable{}}

	data, ok, err := s.scope(ctx, sessionID).Get(ctx, key)
	if err != nil {
		s.logger.Ctx(ctx).Warn("Rate storage read failed", zap.String("key", key), zap.Error(err))
		return empty
	}
	if !ok {
		return empty
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Ctx(ctx).Warn("Discarding unreadable rate cache entry",
			zap.String("key", key),
			zap.Error(fmt.Errorf("%w: %v", ErrInvalidEntry, err)),
		)
		return empty
	}
	if entry.Rates == nil {
		entry.Rates = RateTable{}
	}
	return entry
}

// Set stores rates under key stamped with the current time. Empty tables are
// never stored.
func (s *RateStorage) Set(ctx context.Context, sessionID, key string, rates RateTable) {
	if len(rates) == 0 {
		return
	}

	data, err := json.Marshal(CacheEntry{
		Timestamp: s.now().Unix(),
		Rates:     rates,
	})
	if err != nil {
		s.logger.Ctx(ctx).Warn("Rate cache entry not encodable", zap.String("key", key), zap.Error(err))
		return
	}

	if err := s.scope(ctx, sessionID).Set(ctx, key, data); err != nil {
		s.logger.Ctx(ctx).Warn("Rate storage write failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear removes every key carrying KeyPrefix from the session, one by one.
// Unrelated keys in the same session are left untouched.
func (s *RateStorage) Clear(ctx context.Context, sessionID string) (int, error) {
	session := s.scope(ctx, sessionID)

	keys, err := session.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing session keys: %w", err)
	}

	removed := 0
	var errs []error
	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}
		if err := session.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
