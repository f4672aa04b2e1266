package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cache/internal/core/domain"
)

// ProductCacheRepository stores one collection of product records per session.
// Every method is a single round trip to the backing store.
type ProductCacheRepository interface {
	// PutAll writes every record into the session collection, keeping ids not present in records
	PutAll(ctx context.Context, sessionID string, records []domain.ProductRecord) error

	// Put writes a single record without reading the collection
	Put(ctx context.Context, sessionID string, record domain.ProductRecord) error

	// Get returns false when the record is not cached
	Get(ctx context.Context, sessionID, recordID string) (domain.ProductRecord, bool, error)

	GetAll(ctx context.Context, sessionID string) ([]domain.ProductRecord, error)

	// Delete returns true if a record was removed
	Delete(ctx context.Context, sessionID, recordID string) (bool, error)

	// DeleteAll drops the collection and returns how many records it held
	DeleteAll(ctx context.Context, sessionID string) (int64, error)

	Exists(ctx context.Context, sessionID, recordID string) (bool, error)
	CollectionExists(ctx context.Context, sessionID string) (bool, error)
	Count(ctx context.Context, sessionID string) (int64, error)
	RecordIDs(ctx context.Context, sessionID string) ([]string, error)

	// ReplaceBalance atomically swaps the balance of an existing record, returns false if absent
	ReplaceBalance(ctx context.Context, sessionID, recordID string, balance domain.Balance) (domain.ProductRecord, bool, error)

	// SetBalanceField atomically sets one balance amount of an existing record, returns false if absent
	SetBalanceField(ctx context.Context, sessionID, recordID string, field domain.BalanceField, value decimal.Decimal) (domain.ProductRecord, bool, error)

	// ReplaceBalances applies every update whose record exists and returns the ids it applied
	ReplaceBalances(ctx context.Context, sessionID string, updates map[string]domain.Balance) ([]string, error)
}

// ExpirationRepository manages the single deadline of a session collection.
type ExpirationRepository interface {
	// Expire sets the deadline to now+ttl, returns false if the collection does not exist
	Expire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)

	// ExtendExpiration adds extra to an existing deadline, returns false when there is none
	ExtendExpiration(ctx context.Context, sessionID string, extra time.Duration) (bool, error)

	Expiration(ctx context.Context, sessionID string) (domain.Expiration, error)
}
