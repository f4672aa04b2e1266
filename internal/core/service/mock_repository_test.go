package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cache/internal/core/domain"
)

var errStoreDown = errors.New("connection refused")

// mockCacheRepo is an in-memory stand-in for the Redis store.
type mockCacheRepo struct {
	mu          sync.Mutex
	sessions    map[string]map[string]domain.ProductRecord
	deadlines   map[string]time.Duration
	calls       int
	expireCalls int
	batchCalls  int
	fail        error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		sessions:  make(map[string]map[string]domain.ProductRecord),
		deadlines: make(map[string]time.Duration),
	}
}

func cloneRecord(r domain.ProductRecord) domain.ProductRecord {
	if r.Balance != nil {
		b := *r.Balance
		r.Balance = &b
	}
	if r.Classification != nil {
		c := *r.Classification
		r.Classification = &c
	}
	return r
}

func (m *mockCacheRepo) begin() error {
	m.calls++
	return m.fail
}

func (m *mockCacheRepo) PutAll(ctx context.Context, sessionID string, records []domain.ProductRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	for _, r := range records {
		m.putLocked(sessionID, r)
	}
	return nil
}

func (m *mockCacheRepo) Put(ctx context.Context, sessionID string, record domain.ProductRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	m.putLocked(sessionID, record)
	return nil
}

func (m *mockCacheRepo) putLocked(sessionID string, record domain.ProductRecord) {
	coll, ok := m.sessions[sessionID]
	if !ok {
		coll = make(map[string]domain.ProductRecord)
		m.sessions[sessionID] = coll
	}
	coll[record.ID] = cloneRecord(record)
}

func (m *mockCacheRepo) Get(ctx context.Context, sessionID, recordID string) (domain.ProductRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.ProductRecord{}, false, err
	}
	r, ok := m.sessions[sessionID][recordID]
	if !ok {
		return domain.ProductRecord{}, false, nil
	}
	return cloneRecord(r), true, nil
}

func (m *mockCacheRepo) GetAll(ctx context.Context, sessionID string) ([]domain.ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	var out []domain.ProductRecord
	for _, r := range m.sessions[sessionID] {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockCacheRepo) Delete(ctx context.Context, sessionID, recordID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return false, err
	}
	coll := m.sessions[sessionID]
	if _, ok := coll[recordID]; !ok {
		return false, nil
	}
	delete(coll, recordID)
	if len(coll) == 0 {
		m.dropLocked(sessionID)
	}
	return true, nil
}

func (m *mockCacheRepo) DeleteAll(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}
	n := int64(len(m.sessions[sessionID]))
	m.dropLocked(sessionID)
	return n, nil
}

func (m *mockCacheRepo) dropLocked(sessionID string) {
	delete(m.sessions, sessionID)
	delete(m.deadlines, sessionID)
}

func (m *mockCacheRepo) Exists(ctx context.Context, sessionID, recordID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return false, err
	}
	_, ok := m.sessions[sessionID][recordID]
	return ok, nil
}

func (m *mockCacheRepo) CollectionExists(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return false, err
	}
	_, ok := m.sessions[sessionID]
	return ok, nil
}

func (m *mockCacheRepo) Count(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}
	return int64(len(m.sessions[sessionID])), nil
}

func (m *mockCacheRepo) RecordIDs(ctx context.Context, sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	var ids []string
	for id := range m.sessions[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockCacheRepo) ReplaceBalance(ctx context.Context, sessionID, recordID string, balance domain.Balance) (domain.ProductRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.ProductRecord{}, false, err
	}
	r, ok := m.sessions[sessionID][recordID]
	if !ok {
		return domain.ProductRecord{}, false, nil
	}
	r.Balance = &balance
	m.sessions[sessionID][recordID] = r
	return cloneRecord(r), true, nil
}

func (m *mockCacheRepo) SetBalanceField(ctx context.Context, sessionID, recordID string, field domain.BalanceField, value decimal.Decimal) (domain.ProductRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.ProductRecord{}, false, err
	}
	r, ok := m.sessions[sessionID][recordID]
	if !ok {
		return domain.ProductRecord{}, false, nil
	}
	var b domain.Balance
	if r.Balance != nil {
		b = *r.Balance
	}
	b = b.With(field, value)
	r.Balance = &b
	m.sessions[sessionID][recordID] = r
	return cloneRecord(r), true, nil
}

func (m *mockCacheRepo) ReplaceBalances(ctx context.Context, sessionID string, updates map[string]domain.Balance) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	m.batchCalls++
	var applied []string
	for id, balance := range updates {
		r, ok := m.sessions[sessionID][id]
		if !ok {
			continue
		}
		b := balance
		r.Balance = &b
		m.sessions[sessionID][id] = r
		applied = append(applied, id)
	}
	sort.Strings(applied)
	return applied, nil
}

func (m *mockCacheRepo) Expire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return false, err
	}
	m.expireCalls++
	if _, ok := m.sessions[sessionID]; !ok {
		return false, nil
	}
	m.deadlines[sessionID] = ttl
	return true, nil
}

func (m *mockCacheRepo) ExtendExpiration(ctx context.Context, sessionID string, extra time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return false, err
	}
	ttl, ok := m.deadlines[sessionID]
	if !ok {
		return false, nil
	}
	m.deadlines[sessionID] = ttl + extra
	return true, nil
}

func (m *mockCacheRepo) Expiration(ctx context.Context, sessionID string) (domain.Expiration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.Expiration{}, err
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return domain.Expiration{State: domain.ExpirationAbsent}, nil
	}
	ttl, ok := m.deadlines[sessionID]
	if !ok {
		return domain.Expiration{State: domain.ExpirationPersistent}, nil
	}
	return domain.Expiration{State: domain.ExpirationActive, Remaining: ttl}, nil
}

func (m *mockCacheRepo) setFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *mockCacheRepo) counters() (calls, expireCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.expireCalls
}

func (m *mockCacheRepo) deadline(sessionID string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deadlines[sessionID]
	return d, ok
}

// mockJournal and mockPublisher record what the dispatcher hands them.
type mockJournal struct {
	mu      sync.Mutex
	changes []domain.BalanceChange
	fail    error
}

func (j *mockJournal) AppendChange(ctx context.Context, change domain.BalanceChange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.changes = append(j.changes, change)
	return nil
}

func (j *mockJournal) ListChanges(ctx context.Context, sessionID string, limit int) ([]domain.BalanceChange, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.BalanceChange
	for _, c := range j.changes {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.BalanceChange
}

func (p *mockPublisher) Publish(ctx context.Context, change domain.BalanceChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, change)
	return nil
}
