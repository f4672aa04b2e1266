package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/port"
)

const tracerName = "github.com/rl1809/storefront-cache/internal/core/service"

type Settings struct {
	TTL                time.Duration
	MinSessionIDLength int
	MaxBatchSize       int
	EventQueueSize     int
}

func DefaultSettings() Settings {
	return Settings{
		TTL:                30 * time.Minute,
		MinSessionIDLength: 1,
		MaxBatchSize:       500,
		EventQueueSize:     1024,
	}
}

// ProductCacheService is the session-scoped product balance cache. It holds no
// record state of its own; every call goes straight to the injected repositories.
type ProductCacheService struct {
	cache     port.ProductCacheRepository
	ttl       *TTLCoordinator
	validator *Validator
	settings  Settings
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	events chan domain.BalanceChange
}

type Option func(*ProductCacheService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *ProductCacheService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ProductCacheService) {
		s.now = now
	}
}

func NewProductCacheService(cache port.ProductCacheRepository, expiry port.ExpirationRepository, settings Settings, opts ...Option) *ProductCacheService {
	defaults := DefaultSettings()
	if settings.TTL <= 0 {
		settings.TTL = defaults.TTL
	}
	if settings.EventQueueSize <= 0 {
		settings.EventQueueSize = defaults.EventQueueSize
	}
	if settings.MinSessionIDLength <= 0 {
		settings.MinSessionIDLength = defaults.MinSessionIDLength
	}
	if settings.MaxBatchSize <= 0 {
		settings.MaxBatchSize = defaults.MaxBatchSize
	}

	s := &ProductCacheService{
		cache:    cache,
		settings: settings,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		events:   make(chan domain.BalanceChange, settings.EventQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.validator = NewValidator(settings.MinSessionIDLength, settings.MaxBatchSize)
	s.ttl = NewTTLCoordinator(expiry, s.logger)
	return s
}

// ReplaceAll writes records into the session collection and returns how many were written.
// Ids already cached but missing from records are kept.
func (s *ProductCacheService) ReplaceAll(ctx context.Context, sessionID string, records []domain.ProductRecord) (written int, err error) {
	ctx, span := s.start(ctx, "ReplaceAll", sessionID, "")
	defer func() { endSpan(span, err) }()

	if err := s.validator.SessionID(sessionID); err != nil {
		return 0, err
	}

	index := make(map[string]int, len(records))
	filtered := make([]domain.ProductRecord, 0, len(records))
	for _, record := range records {
		if err := s.validator.Record(record); err != nil {
			s.logger.Warn("Dropping invalid product record",
				zap.String("session_id", sessionID),
				zap.String("record_id", record.ID),
				zap.Error(err))
			continue
		}
		if i, seen := index[record.ID]; seen {
			filtered[i] = record
			continue
		}
		index[record.ID] = len(filtered)
		filtered = append(filtered, record)
	}

	if len(filtered) == 0 {
		s.logger.Debug("Nothing to write for session", zap.String("session_id", sessionID))
		return 0, nil
	}

	if err := s.cache.PutAll(ctx, sessionID, filtered); err != nil {
		return 0, s.fail("replace_all", sessionID, "", err)
	}
	if err := s.touch(ctx, sessionID); err != nil {
		return len(filtered), err
	}

	s.logger.Debug("Replaced session products",
		zap.String("session_id", sessionID),
		zap.Int("count", len(filtered)))
	return len(filtered), nil
}

func (s *ProductCacheService) Upsert(ctx context.Context, sessionID string, record domain.ProductRecord) (err error) {
	ctx, span := s.start(ctx, "Upsert", sessionID, record.ID)
	defer func() { endSpan(span, err) }()

	if err := s.validator.SessionID(sessionID); err != nil {
		return err
	}
	if err := s.validator.Record(record); err != nil {
		return err
	}

	if err := s.cache.Put(ctx, sessionID, record); err != nil {
		return s.fail("upsert", sessionID, record.ID, err)
	}
	return s.touch(ctx, sessionID)
}

// Get returns false when the record is not cached.
func (s *ProductCacheService) Get(ctx context.Context, sessionID, recordID string) (record domain.ProductRecord, found bool, err error) {
	ctx, span := s.start(ctx, "Get", sessionID, recordID)
	defer func() { endSpan(span, err) }()

	if err := s.validateIDs(sessionID, recordID); err != nil {
		return domain.ProductRecord{}, false, err
	}

	record, found, err = s.cache.Get(ctx, sessionID, recordID)
	if err != nil {
		return domain.ProductRecord{}, false, s.fail("get", sessionID, recordID, err)
	}
	return record, found, nil
}

func (s *ProductCacheService) GetAll(ctx context.Context, sessionID string) (records []domain.ProductRecord, err error) {
	ctx, span := s.start(ctx, "GetAll", sessionID, "")
	defer func() { endSpan(span, err) }()

	if err := s.validator.SessionID(sessionID); err != nil {
		return nil, err
	}

	records, err = s.cache.GetAll(ctx, sessionID)
	if err != nil {
		return nil, s.fail("get_all", sessionID, "", err)
	}
	if records == nil {
		records = []domain.ProductRecord{}
	}
	return records, nil
}

func (s *ProductCacheService) Delete(ctx context.Context, sessionID, recordID string) (removed bool, err error) {
	ctx, span := s.start(ctx, "Delete", sessionID, recordID)
	defer func() { endSpan(span, err) }()

	if err := s.validateIDs(sessionID, recordID); err != nil {
		return false, err
	}

	removed, err = s.cache.Delete(ctx, sessionID, recordID)
	if err != nil {
		return false, s.fail("delete", sessionID, recordID, err)
	}
	if !removed {
		return false, nil
	}
	return true, s.touch(ctx, sessionID)
}

// DeleteAll drops the whole collection and returns how many records it held.
func (s *ProductCacheService) DeleteAll(ctx context.Context, sessionID string) (deleted int64, err error) {
	ctx, span := s.start(ctx, "DeleteAll", sessionID, "")
	defer func() { endSpan(span, err) }()

	if err := s.validator.SessionID(sessionID); err != nil {
		return 0, err
	}

	deleted, err = s.cache.DeleteAll(ctx, sessionID)
	if err != nil {
		return 0, s.fail("delete_all", sessionID, "", err)
	}
	return deleted, nil
}

func (s *ProductCacheService) Exists(ctx context.Context, sessionID, recordID string) (bool, error) {
	if err := s.validateIDs(sessionID, recordID); err != nil {
		return false, err
	}

	ok, err := s.cache.Exists(ctx, sessionID, recordID)
	if err != nil {
		return false, s.fail("exists", sessionID, recordID, err)
	}
	return ok, nil
}

func (s *ProductCacheService) CollectionExists(ctx context.Context, sessionID string) (bool, error) {
	if err := s.validator.SessionID(sessionID); err != nil {
		return false, err
	}

	ok, err := s.cache.CollectionExists(ctx, sessionID)
	if err != nil {
		return false, s.fail("collection_exists", sessionID, "", err)
	}
	return ok, nil
}

func (s *ProductCacheService) Count(ctx context.Context, sessionID string) (int64, error) {
	if err := s.validator.SessionID(sessionID); err != nil {
		return 0, err
	}

	n, err := s.cache.Count(ctx, sessionID)
	if err != nil {
		return 0, s.fail("count", sessionID, "", err)
	}
	return n, nil
}

func (s *ProductCacheService) RecordIDs(ctx context.Context, sessionID string) ([]string, error) {
	if err := s.validator.SessionID(sessionID); err != nil {
		return nil, err
	}

	ids, err := s.cache.RecordIDs(ctx, sessionID)
	if err != nil {
		return nil, s.fail("record_ids", sessionID, "", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// UpdateBalance replaces the balance of a cached record. It never creates a record:
// false means the record was not cached and nothing changed.
func (s *ProductCacheService) UpdateBalance(ctx context.Context, sessionID, recordID string, balance domain.Balance) (applied bool, err error) {
	ctx, span := s.start(ctx, "UpdateBalance", sessionID, recordID)
	defer func() { endSpan(span, err) }()

	if err := s.validateIDs(sessionID, recordID); err != nil {
		return false, err
	}
	if err := s.validator.Balance(balance); err != nil {
		return false, err
	}

	updated, ok, err := s.cache.ReplaceBalance(ctx, sessionID, recordID, balance)
	if err != nil {
		return false, s.fail("update_balance", sessionID, recordID, err)
	}
	if !ok {
		s.logger.Debug("Balance update skipped, record not cached",
			zap.String("session_id", sessionID),
			zap.String("record_id", recordID))
		return false, nil
	}

	s.emit(sessionID, recordID, domain.BalanceChangeReplace, "", resultingBalance(updated, balance))
	return true, s.touch(ctx, sessionID)
}

// UpdateBalanceField sets one amount of a cached record's balance, starting from a
// zero balance when the record had none.
func (s *ProductCacheService) UpdateBalanceField(ctx context.Context, sessionID, recordID string, field domain.BalanceField, value decimal.Decimal) (applied bool, err error) {
	ctx, span := s.start(ctx, "UpdateBalanceField", sessionID, recordID)
	defer func() { endSpan(span, err) }()

	if err := s.validateIDs(sessionID, recordID); err != nil {
		return false, err
	}
	field, err = domain.ParseBalanceField(string(field))
	if err != nil {
		return false, err
	}
	if err := s.validator.Amount(field, value); err != nil {
		return false, err
	}

	updated, ok, err := s.cache.SetBalanceField(ctx, sessionID, recordID, field, value)
	if err != nil {
		return false, s.fail("update_balance_field", sessionID, recordID, err)
	}
	if !ok {
		return false, nil
	}

	s.emit(sessionID, recordID, domain.BalanceChangeField, field, resultingBalance(updated, domain.Balance{}.With(field, value)))
	return true, s.touch(ctx, sessionID)
}

// UpdateBalancesBatch applies every valid update whose record is cached, in one round
// trip, and returns how many were applied. Invalid entries are skipped.
func (s *ProductCacheService) UpdateBalancesBatch(ctx context.Context, sessionID string, updates map[string]domain.Balance) (applied int, err error) {
	ctx, span := s.start(ctx, "UpdateBalancesBatch", sessionID, "")
	defer func() { endSpan(span, err) }()

	if err := s.validator.SessionID(sessionID); err != nil {
		return 0, err
	}
	if err := s.validator.BatchSize(len(updates)); err != nil {
		return 0, err
	}

	valid := make(map[string]domain.Balance, len(updates))
	skipped := 0
	for recordID, balance := range updates {
		if s.validator.RecordID(recordID) != nil || s.validator.Balance(balance) != nil {
			skipped++
			continue
		}
		valid[recordID] = balance
	}
	span.SetAttributes(attribute.Int("batch.size", len(updates)), attribute.Int("batch.skipped", skipped))

	if len(valid) == 0 {
		return 0, nil
	}

	ids, err := s.cache.ReplaceBalances(ctx, sessionID, valid)
	if err != nil {
		return 0, s.fail("update_balances_batch", sessionID, "", err)
	}

	s.logger.Debug("Applied balance batch",
		zap.String("session_id", sessionID),
		zap.Int("applied", len(ids)),
		zap.Int("skipped", skipped),
		zap.Int("missing", len(valid)-len(ids)))

	if len(ids) == 0 {
		return 0, nil
	}
	for _, id := range ids {
		s.emit(sessionID, id, domain.BalanceChangeBatch, "", valid[id])
	}
	return len(ids), s.touch(ctx, sessionID)
}

// BalanceConsistency reports whether available + used equals total for a cached record.
// A record without a balance counts as consistent.
func (s *ProductCacheService) BalanceConsistency(ctx context.Context, sessionID, recordID string) (consistent, found bool, err error) {
	record, found, err := s.Get(ctx, sessionID, recordID)
	if err != nil || !found {
		return false, found, err
	}
	if record.Balance == nil {
		return true, true, nil
	}
	return record.Balance.IsConsistent(), true, nil
}

// CheckBatchSize rejects a batch of n entries that exceeds the configured maximum.
// Transports call it before dropping entries they cannot decode.
func (s *ProductCacheService) CheckBatchSize(n int) error {
	return s.validator.BatchSize(n)
}

// DefaultTTL is the lifetime applied after every successful mutation.
func (s *ProductCacheService) DefaultTTL() time.Duration {
	return s.settings.TTL
}

func (s *ProductCacheService) RefreshTTL(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	if err := s.validator.SessionID(sessionID); err != nil {
		return false, err
	}
	return s.ttl.Refresh(ctx, sessionID, ttl)
}

func (s *ProductCacheService) ExtendTTL(ctx context.Context, sessionID string, extra time.Duration) (bool, error) {
	if err := s.validator.SessionID(sessionID); err != nil {
		return false, err
	}
	return s.ttl.Extend(ctx, sessionID, extra)
}

func (s *ProductCacheService) RemainingTTL(ctx context.Context, sessionID string) (domain.Expiration, error) {
	if err := s.validator.SessionID(sessionID); err != nil {
		return domain.Expiration{}, err
	}
	return s.ttl.Remaining(ctx, sessionID)
}

// Events delivers balance changes that were applied. Events are dropped when the
// queue is full.
func (s *ProductCacheService) Events() <-chan domain.BalanceChange {
	return s.events
}

func (s *ProductCacheService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// touch is the single place mutation paths refresh the collection deadline,
// and only once they know state changed.
func (s *ProductCacheService) touch(ctx context.Context, sessionID string) error {
	_, err := s.ttl.Refresh(ctx, sessionID, s.settings.TTL)
	return err
}

func (s *ProductCacheService) emit(sessionID, recordID string, kind domain.BalanceChangeKind, field domain.BalanceField, balance domain.Balance) {
	change := domain.BalanceChange{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		RecordID:   recordID,
		Kind:       kind,
		Field:      field,
		Balance:    balance,
		OccurredAt: s.now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- change:
	default:
		s.logger.Warn("Balance event queue full, dropping event",
			zap.String("session_id", sessionID),
			zap.String("record_id", recordID),
			zap.String("kind", string(kind)))
	}
}

func (s *ProductCacheService) validateIDs(sessionID, recordID string) error {
	if err := s.validator.SessionID(sessionID); err != nil {
		return err
	}
	return s.validator.RecordID(recordID)
}

// fail logs a store failure once and wraps it.
func (s *ProductCacheService) fail(op, sessionID, recordID string, err error) error {
	s.logger.Error("Product cache operation failed",
		zap.String("op", op),
		zap.String("session_id", sessionID),
		zap.String("record_id", recordID),
		zap.Error(err))
	return &domain.StoreError{Op: op, SessionID: sessionID, RecordID: recordID, Err: err}
}

func (s *ProductCacheService) start(ctx context.Context, op, sessionID, recordID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("session.id", sessionID)}
	if recordID != "" {
		attrs = append(attrs, attribute.String("record.id", recordID))
	}
	return s.tracer.Start(ctx, "ProductCache."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func resultingBalance(record domain.ProductRecord, fallback domain.Balance) domain.Balance {
	if record.Balance != nil {
		return *record.Balance
	}
	return fallback
}
