package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/port"
)

// Each session is one hash: field = record id, value = encoded record.
// Balance mutations run as scripts so the read-transform-write on a record
// is indivisible for concurrent callers.

var replaceBalanceScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
	return false
end

local record = cjson.decode(raw)
record['balance'] = cjson.decode(ARGV[2])

local updated = cjson.encode(record)
redis.call('HSET', KEYS[1], ARGV[1], updated)
return updated
`)

var setBalanceFieldScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
	return false
end

local record = cjson.decode(raw)
local balance = record['balance']
if type(balance) ~= 'table' then
	balance = {totalBalance = '0', availableAmount = '0', usedAmount = '0'}
end
balance[ARGV[2]] = ARGV[3]
record['balance'] = balance

local updated = cjson.encode(record)
redis.call('HSET', KEYS[1], ARGV[1], updated)
return updated
`)

var replaceBalancesScript = redis.NewScript(`
local applied = {}
for i = 1, #ARGV, 2 do
	local raw = redis.call('HGET', KEYS[1], ARGV[i])
	if raw then
		local record = cjson.decode(raw)
		record['balance'] = cjson.decode(ARGV[i + 1])
		redis.call('HSET', KEYS[1], ARGV[i], cjson.encode(record))
		applied[#applied + 1] = ARGV[i]
	end
end
return applied
`)

var extendExpirationScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	return 0
end

redis.call('PEXPIRE', KEYS[1], ttl + tonumber(ARGV[1]))
return 1
`)

type RedisProductCache struct {
	client    *redis.Client
	keyPrefix string
}

type RedisProductCacheOption func(*RedisProductCache)

func WithKeyPrefix(prefix string) RedisProductCacheOption {
	return func(r *RedisProductCache) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedisProductCache uses a client owned by the caller.
func NewRedisProductCache(client *redis.Client, opts ...RedisProductCacheOption) *RedisProductCache {
	r := &RedisProductCache{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	_ port.ProductCacheRepository = (*RedisProductCache)(nil)
	_ port.ExpirationRepository   = (*RedisProductCache)(nil)
)

func (r *RedisProductCache) key(sessionID string) string {
	return SessionKey(r.keyPrefix, sessionID)
}

func (r *RedisProductCache) PutAll(ctx context.Context, sessionID string, records []domain.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]any, 0, len(records)*2)
	for _, record := range records {
		encoded, err := encodeRecord(record)
		if err != nil {
			return err
		}
		values = append(values, record.ID, encoded)
	}

	if err := r.client.HSet(ctx, r.key(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("hset records: %w", err)
	}
	return nil
}

func (r *RedisProductCache) Put(ctx context.Context, sessionID string, record domain.ProductRecord) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	if err := r.client.HSet(ctx, r.key(sessionID), record.ID, encoded).Err(); err != nil {
		return fmt.Errorf("hset record: %w", err)
	}
	return nil
}

func (r *RedisProductCache) Get(ctx context.Context, sessionID, recordID string) (domain.ProductRecord, bool, error) {
	raw, err := r.client.HGet(ctx, r.key(sessionID), recordID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ProductRecord{}, false, nil
	}
	if err != nil {
		return domain.ProductRecord{}, false, fmt.Errorf("hget record: %w", err)
	}

	record, err := decodeRecord(raw)
	if err != nil {
		return domain.ProductRecord{}, false, err
	}
	return record, true, nil
}

func (r *RedisProductCache) GetAll(ctx context.Context, sessionID string) ([]domain.ProductRecord, error) {
	raws, err := r.client.HVals(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hvals records: %w", err)
	}

	records := make([]domain.ProductRecord, 0, len(raws))
	for _, raw := range raws {
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *RedisProductCache) Delete(ctx context.Context, sessionID, recordID string) (bool, error) {
	removed, err := r.client.HDel(ctx, r.key(sessionID), recordID).Result()
	if err != nil {
		return false, fmt.Errorf("hdel record: %w", err)
	}
	return removed > 0, nil
}

func (r *RedisProductCache) DeleteAll(ctx context.Context, sessionID string) (int64, error) {
	key := r.key(sessionID)

	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.HLen(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete collection: %w", err)
	}
	return count.Val(), nil
}

func (r *RedisProductCache) Exists(ctx context.Context, sessionID, recordID string) (bool, error) {
	ok, err := r.client.HExists(ctx, r.key(sessionID), recordID).Result()
	if err != nil {
		return false, fmt.Errorf("hexists record: %w", err)
	}
	return ok, nil
}

func (r *RedisProductCache) CollectionExists(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists collection: %w", err)
	}
	return n > 0, nil
}

func (r *RedisProductCache) Count(ctx context.Context, sessionID string) (int64, error) {
	n, err := r.client.HLen(ctx, r.key(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("hlen collection: %w", err)
	}
	return n, nil
}

func (r *RedisProductCache) RecordIDs(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := r.client.HKeys(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hkeys collection: %w", err)
	}
	return ids, nil
}

func (r *RedisProductCache) ReplaceBalance(ctx context.Context, sessionID, recordID string, balance domain.Balance) (domain.ProductRecord, bool, error) {
	encoded, err := encodeBalance(balance)
	if err != nil {
		return domain.ProductRecord{}, false, err
	}

	raw, err := replaceBalanceScript.Run(ctx, r.client, []string{r.key(sessionID)}, recordID, encoded).Text()
	return r.scriptResult(raw, err, "replace balance")
}

func (r *RedisProductCache) SetBalanceField(ctx context.Context, sessionID, recordID string, field domain.BalanceField, value decimal.Decimal) (domain.ProductRecord, bool, error) {
	raw, err := setBalanceFieldScript.Run(ctx, r.client, []string{r.key(sessionID)}, recordID, string(field), value.String()).Text()
	return r.scriptResult(raw, err, "set balance field")
}

func (r *RedisProductCache) scriptResult(raw string, err error, op string) (domain.ProductRecord, bool, error) {
	if errors.Is(err, redis.Nil) {
		return domain.ProductRecord{}, false, nil
	}
	if err != nil {
		return domain.ProductRecord{}, false, fmt.Errorf("%s: %w", op, err)
	}

	record, err := decodeRecord(raw)
	if err != nil {
		return domain.ProductRecord{}, false, err
	}
	return record, true, nil
}

func (r *RedisProductCache) ReplaceBalances(ctx context.Context, sessionID string, updates map[string]domain.Balance) ([]string, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	args := make([]any, 0, len(ids)*2)
	for _, id := range ids {
		encoded, err := encodeBalance(updates[id])
		if err != nil {
			return nil, err
		}
		args = append(args, id, encoded)
	}

	applied, err := replaceBalancesScript.Run(ctx, r.client, []string{r.key(sessionID)}, args...).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("replace balances: %w", err)
	}
	return applied, nil
}

func (r *RedisProductCache) Expire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.PExpire(ctx, r.key(sessionID), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("pexpire collection: %w", err)
	}
	return ok, nil
}

func (r *RedisProductCache) ExtendExpiration(ctx context.Context, sessionID string, extra time.Duration) (bool, error) {
	result, err := extendExpirationScript.Run(ctx, r.client, []string{r.key(sessionID)}, extra.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend expiration: %w", err)
	}
	return result == 1, nil
}

func (r *RedisProductCache) Expiration(ctx context.Context, sessionID string) (domain.Expiration, error) {
	ttl, err := r.client.PTTL(ctx, r.key(sessionID)).Result()
	if err != nil {
		return domain.Expiration{}, fmt.Errorf("pttl collection: %w", err)
	}

	// PTTL answers -2 for a missing key and -1 for a key without deadline.
	switch ttl {
	case -2:
		return domain.Expiration{State: domain.ExpirationAbsent}, nil
	case -1:
		return domain.Expiration{State: domain.ExpirationPersistent}, nil
	}
	return domain.Expiration{State: domain.ExpirationActive, Remaining: ttl}, nil
}
