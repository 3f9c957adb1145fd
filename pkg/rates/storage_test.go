package rates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSessions struct{}

func (failingSessions) Open(context.Context, string) (rates.Session, error) {
	return nil, errors.New("session backend down")
}

func sampleRates() rates.RateTable {
	return rates.RateTable{
		"m1": {Price: 12.5, CarrierCode: "fedex", MethodCode: "ground", Currency: "USD"},
	}
}

func TestRateStorage_SetAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	storage := rates.NewRateStorage(rates.NewMemorySessions(time.Hour), testLogger(), rates.WithStorageClock(clock.Now))

	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())

	assert.True(t, storage.Has(ctx, "s1", "shipperhq_shipping_rates_k1"))
	entry := storage.Get(ctx, "s1", "shipperhq_shipping_rates_k1")
	assert.Equal(t, clock.Now().Unix(), entry.Timestamp)
	assert.Equal(t, sampleRates(), entry.Rates)
}

func TestRateStorage_Get_Missing(t *testing.T) {
	storage := rates.NewRateStorage(rates.NewMemorySessions(time.Hour), testLogger())

	entry := storage.Get(context.Background(), "s1", "shipperhq_shipping_rates_none")
	assert.Zero(t, entry.Timestamp)
	assert.NotNil(t, entry.Rates)
	assert.Empty(t, entry.Rates)
}

func TestRateStorage_Set_EmptyNotStored(t *testing.T) {
	ctx := context.Background()
	storage := rates.NewRateStorage(rates.NewMemorySessions(time.Hour), testLogger())

	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", rates.RateTable{})

	assert.False(t, storage.Has(ctx, "s1", "shipperhq_shipping_rates_k1"))
}

func TestRateStorage_SessionsIsolated(t *testing.T) {
	ctx := context.Background()
	storage := rates.NewRateStorage(rates.NewMemorySessions(time.Hour), testLogger())

	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())

	assert.False(t, storage.Has(ctx, "s2", "shipperhq_shipping_rates_k1"))
}

func TestRateStorage_Get_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	sessions := rates.NewMemorySessions(time.Hour)
	storage := rates.NewRateStorage(sessions, testLogger())

	session, err := sessions.Open(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, session.Set(ctx, "shipperhq_shipping_rates_k1", []byte("{not json")))

	entry := storage.Get(ctx, "s1", "shipperhq_shipping_rates_k1")
	assert.True(t, entry.IsEmpty())
}

func TestRateStorage_Clear_KeepsUnrelatedKeys(t *testing.T) {
	ctx := context.Background()
	sessions := rates.NewMemorySessions(time.Hour)
	storage := rates.NewRateStorage(sessions, testLogger())

	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())
	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k2", sampleRates())

	session, err := sessions.Open(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, session.Set(ctx, "checkout_step", []byte("payment")))

	removed, err := storage.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := session.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"checkout_step"}, keys)
}

func TestRateStorage_Clear_Idempotent(t *testing.T) {
	ctx := context.Background()
	storage := rates.NewRateStorage(rates.NewMemorySessions(time.Hour), testLogger())
	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())

	_, err := storage.Clear(ctx, "s1")
	require.NoError(t, err)
	removed, err := storage.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRateStorage_UnavailableSessionDegrades(t *testing.T) {
	ctx := context.Background()
	storage := rates.NewRateStorage(failingSessions{}, testLogger())

	assert.NotPanics(t, func() {
		storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())
	})
	// each call gets a fresh ephemeral scope, so nothing survives
	assert.False(t, storage.Has(ctx, "s1", "shipperhq_shipping_rates_k1"))

	removed, err := storage.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRateStorage_NoSessionID(t *testing.T) {
	ctx := context.Background()
	storage := rates.NewRateStorage(rates.NewMemorySessions(time.Hour), testLogger())

	storage.Set(ctx, "", "shipperhq_shipping_rates_k1", sampleRates())
	assert.False(t, storage.Has(ctx, "", "shipperhq_shipping_rates_k1"))
}

func TestMemorySessions_OpenRequiresID(t *testing.T) {
	_, err := rates.NewMemorySessions(time.Hour).Open(context.Background(), "")
	assert.ErrorIs(t, err, rates.ErrNoActiveSession)
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client, mr
}

func TestRedisSessions_SetGetClear(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestRedis(t)
	sessions := rates.NewRedisSessions(client, time.Hour)
	storage := rates.NewRateStorage(sessions, testLogger())

	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())
	require.NoError(t, client.HSet(ctx, rates.DefaultRedisPrefix+"s1", "cart_token", "abc").Err())

	entry := storage.Get(ctx, "s1", "shipperhq_shipping_rates_k1")
	assert.Equal(t, sampleRates(), entry.Rates)

	removed, err := storage.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.False(t, storage.Has(ctx, "s1", "shipperhq_shipping_rates_k1"))
	token, err := client.HGet(ctx, rates.DefaultRedisPrefix+"s1", "cart_token").Result()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestRedisSessions_Expiry(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	storage := rates.NewRateStorage(rates.NewRedisSessions(client, 30*time.Minute), testLogger())

	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())
	assert.True(t, mr.Exists(rates.DefaultRedisPrefix+"s1"))

	mr.FastForward(31 * time.Minute)

	assert.False(t, storage.Has(ctx, "s1", "shipperhq_shipping_rates_k1"))
}

func TestRedisSessions_BackendDown(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	storage := rates.NewRateStorage(rates.NewRedisSessions(client, time.Hour), testLogger())
	mr.Close()

	storage.Set(ctx, "s1", "shipperhq_shipping_rates_k1", sampleRates())
	entry := storage.Get(ctx, "s1", "shipperhq_shipping_rates_k1")
	assert.True(t, entry.IsEmpty())

	_, err := storage.Clear(ctx, "s1")
	assert.Error(t, err)
}

func TestNewRedisSessions_NilClient(t *testing.T) {
	assert.Panics(t, func() {
		rates.NewRedisSessions(nil, time.Hour)
	})
}
