package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/port"
)

const defaultJournalLimit = 100

// MySQLJournal keeps an append-only history of balance changes applied to the cache.
type MySQLJournal struct {
	db *sql.DB
}

// OpenMySQL opens a pool for the journal. Timestamps are always parsed into
// time.Time in UTC whatever the DSN says.
func OpenMySQL(dsn string) (*sql.DB, error) {
	cfg, err := journalConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func journalConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

func NewMySQLJournal(db *sql.DB) *MySQLJournal {
	return &MySQLJournal{db: db}
}

var _ port.BalanceJournalRepository = (*MySQLJournal)(nil)

func (m *MySQLJournal) AppendChange(ctx context.Context, change domain.BalanceChange) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO balance_journal
			(id, session_id, record_id, kind, field, total_balance, available_amount, used_amount, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID, change.SessionID, change.RecordID, string(change.Kind), string(change.Field),
		change.Balance.TotalBalance, change.Balance.AvailableAmount, change.Balance.UsedAmount,
		change.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert balance change: %w", err)
	}
	return nil
}

func (m *MySQLJournal) ListChanges(ctx context.Context, sessionID string, limit int) ([]domain.BalanceChange, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, record_id, kind, field, total_balance, available_amount, used_amount, occurred_at
		FROM balance_journal
		WHERE session_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query balance changes: %w", err)
	}
	defer rows.Close()

	var changes []domain.BalanceChange
	for rows.Next() {
		var (
			c           domain.BalanceChange
			kind, field string
			total       decimal.Decimal
			available   decimal.Decimal
			used        decimal.Decimal
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.RecordID, &kind, &field, &total, &available, &used, &c.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan balance change: %w", err)
		}
		c.Kind = domain.BalanceChangeKind(kind)
		c.Field = domain.BalanceField(field)
		c.Balance = domain.Balance{TotalBalance: total, AvailableAmount: available, UsedAmount: used}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance changes: %w", err)
	}

	return changes, nil
}

// Schema of the journal table, applied by EnsureSchema.
const journalSchema = `
CREATE TABLE IF NOT EXISTS balance_journal (
	id               CHAR(36)       NOT NULL PRIMARY KEY,
	session_id       VARCHAR(128)   NOT NULL,
	record_id        VARCHAR(128)   NOT NULL,
	kind             VARCHAR(16)    NOT NULL,
	field            VARCHAR(32)    NOT NULL DEFAULT '',
	total_balance    DECIMAL(20, 4) NOT NULL,
	available_amount DECIMAL(20, 4) NOT NULL,
	used_amount      DECIMAL(20, 4) NOT NULL,
	occurred_at      DATETIME(6)    NOT NULL,
	INDEX idx_balance_journal_session (session_id, occurred_at)
)`

func (m *MySQLJournal) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("create balance_journal: %w", err)
	}
	return nil
}
