package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/port"
)

// TTLCoordinator owns the one deadline shared by every record of a session.
type TTLCoordinator struct {
	expiry port.ExpirationRepository
	logger *zap.Logger
}

func NewTTLCoordinator(expiry port.ExpirationRepository, logger *zap.Logger) *TTLCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TTLCoordinator{expiry: expiry, logger: logger}
}

// Refresh sets the deadline to now+ttl. It reports false when the collection does not exist.
func (c *TTLCoordinator) Refresh(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, domain.InvalidArgument("ttl must be positive")
	}

	ok, err := c.expiry.Expire(ctx, sessionID, ttl)
	if err != nil {
		return false, c.fail("refresh_ttl", sessionID, err)
	}
	return ok, nil
}

// Extend pushes an existing deadline further out. It reports false when no deadline was present.
func (c *TTLCoordinator) Extend(ctx context.Context, sessionID string, extra time.Duration) (bool, error) {
	if extra <= 0 {
		return false, domain.InvalidArgument("extension must be positive")
	}

	ok, err := c.expiry.ExtendExpiration(ctx, sessionID, extra)
	if err != nil {
		return false, c.fail("extend_ttl", sessionID, err)
	}
	return ok, nil
}

func (c *TTLCoordinator) Remaining(ctx context.Context, sessionID string) (domain.Expiration, error) {
	exp, err := c.expiry.Expiration(ctx, sessionID)
	if err != nil {
		return domain.Expiration{}, c.fail("remaining_ttl", sessionID, err)
	}
	return exp, nil
}

func (c *TTLCoordinator) fail(op, sessionID string, err error) error {
	c.logger.Error("Cache expiration operation failed",
		zap.String("op", op),
		zap.String("session_id", sessionID),
		zap.Error(err))
	return &domain.StoreError{Op: op, SessionID: sessionID, Err: err}
}
