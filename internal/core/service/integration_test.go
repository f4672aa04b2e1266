package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront-cache/internal/adapter/storage"
	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/core/service"
)

type testEnv struct {
	mr        *miniredis.Miniredis // nil against a live server
	redis     *redis.Client
	svc       *service.ProductCacheService
	sessionID string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	var mr *miniredis.Miniredis
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		mr = miniredis.RunT(t)
		addr = mr.Addr()
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	cache := storage.NewRedisProductCache(rdb, storage.WithKeyPrefix("it:products:"))
	svc := service.NewProductCacheService(cache, cache, service.Settings{
		TTL:                time.Minute,
		MinSessionIDLength: 8,
		MaxBatchSize:       50,
		EventQueueSize:     64,
	})

	env := &testEnv{mr: mr, redis: rdb, svc: svc, sessionID: "sess-" + uuid.NewString()}
	t.Cleanup(func() {
		svc.Close()
		rdb.Del(context.Background(), storage.SessionKey("it:products:", env.sessionID))
		rdb.Close()
	})
	return env
}

func product(id string, total, available, used int64) domain.ProductRecord {
	return domain.ProductRecord{
		ID:     id,
		Number: "ACC-" + id,
		Balance: &domain.Balance{
			TotalBalance:    decimal.NewFromInt(total),
			AvailableAmount: decimal.NewFromInt(available),
			UsedAmount:      decimal.NewFromInt(used),
		},
	}
}

func TestIntegration_SessionLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	s := env.sessionID

	n, err := env.svc.ReplaceAll(ctx, s, []domain.ProductRecord{product("P1", 1000, 800, 200)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.svc.ReplaceAll(ctx, s, []domain.ProductRecord{product("P2", 50, 50, 0)})
	require.NoError(t, err)

	ids, err := env.svc.RecordIDs(ctx, s)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"P1", "P2"}, ids)

	exp, err := env.svc.RemainingTTL(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, domain.ExpirationActive, exp.State)
	assert.LessOrEqual(t, exp.Remaining, time.Minute)

	applied, err := env.svc.UpdateBalanceField(ctx, s, "P1", domain.FieldUsedAmount, decimal.NewFromInt(300))
	require.NoError(t, err)
	require.True(t, applied)

	p1, found, err := env.svc.Get(ctx, s, "P1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, p1.Balance.TotalBalance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, p1.Balance.AvailableAmount.Equal(decimal.NewFromInt(800)))
	assert.True(t, p1.Balance.UsedAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "ACC-P1", p1.Number)

	count, err := env.svc.Count(ctx, s)
	require.NoError(t, err)

	deleted, err := env.svc.DeleteAll(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, count, deleted)

	exists, err := env.svc.CollectionExists(ctx, s)
	require.NoError(t, err)
	assert.False(t, exists)

	exp, err = env.svc.RemainingTTL(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, domain.ExpirationAbsent, exp.State)
}

func TestIntegration_MissingRecordKeepsTTL(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	s := env.sessionID

	require.NoError(t, env.svc.Upsert(ctx, s, product("P1", 1, 1, 0)))

	// Shorten the deadline so an unwanted refresh would be visible.
	_, err := env.svc.RefreshTTL(ctx, s, 5*time.Second)
	require.NoError(t, err)

	applied, err := env.svc.UpdateBalance(ctx, s, "missing-id", domain.Balance{})
	require.NoError(t, err)
	assert.False(t, applied)

	exp, err := env.svc.RemainingTTL(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, domain.ExpirationActive, exp.State)
	assert.LessOrEqual(t, exp.Remaining, 5*time.Second)

	count, err := env.svc.Count(ctx, s)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestIntegration_BatchUpdate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	s := env.sessionID

	_, err := env.svc.ReplaceAll(ctx, s, []domain.ProductRecord{
		product("P1", 1, 1, 0),
		product("P2", 1, 1, 0),
		product("P3", 1, 1, 0),
		product("P4", 1, 1, 0),
		product("P5", 1, 1, 0),
	})
	require.NoError(t, err)

	negative := decimal.NewFromInt(-1)
	applied, err := env.svc.UpdateBalancesBatch(ctx, s, map[string]domain.Balance{
		"P1": {TotalBalance: decimal.NewFromInt(10), AvailableAmount: decimal.NewFromInt(10)},
		"P2": {TotalBalance: negative},
		"P3": {TotalBalance: decimal.NewFromInt(30), AvailableAmount: decimal.NewFromInt(30)},
		"P4": {UsedAmount: negative},
		"P5": {TotalBalance: decimal.NewFromInt(50), UsedAmount: decimal.NewFromInt(50)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	p5, _, err := env.svc.Get(ctx, s, "P5")
	require.NoError(t, err)
	assert.True(t, p5.Balance.UsedAmount.Equal(decimal.NewFromInt(50)))

	p2, _, err := env.svc.Get(ctx, s, "P2")
	require.NoError(t, err)
	assert.True(t, p2.Balance.TotalBalance.Equal(decimal.NewFromInt(1)))
}

func TestIntegration_CollectionExpires(t *testing.T) {
	env := setupTestEnv(t)
	if env.mr == nil {
		t.Skip("needs miniredis to move the clock")
	}
	ctx := context.Background()
	s := env.sessionID

	_, err := env.svc.ReplaceAll(ctx, s, []domain.ProductRecord{product("P1", 1, 1, 0), product("P2", 2, 2, 0)})
	require.NoError(t, err)

	env.mr.FastForward(time.Minute + time.Second)

	exists, err := env.svc.CollectionExists(ctx, s)
	require.NoError(t, err)
	assert.False(t, exists)

	records, err := env.svc.GetAll(ctx, s)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	exp, err := env.svc.RemainingTTL(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, domain.ExpirationAbsent, exp.State)

	applied, err := env.svc.UpdateBalance(ctx, s, "P1", domain.Balance{TotalBalance: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.False(t, applied, "expired records are not revived")
}
