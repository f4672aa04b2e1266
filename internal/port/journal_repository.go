package port

import (
	"context"

	"github.com/rl1809/storefront-cache/internal/core/domain"
)

type BalanceJournalRepository interface {
	// AppendChange persists an applied balance change
	AppendChange(ctx context.Context, change domain.BalanceChange) error

	// ListChanges returns the newest changes of a session first
	ListChanges(ctx context.Context, sessionID string, limit int) ([]domain.BalanceChange, error)
}

type BalanceEventPublisher interface {
	Publish(ctx context.Context, change domain.BalanceChange) error
}
