package service

import (
	"context"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// AttemptStore persists login attempts. Implemented by
// repository.LoginAttemptRepository.
type AttemptStore interface {
	Create(ctx context.Context, a *model.LoginAttempt) error
	CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error)
	HasBlocked(ctx context.Context, ip string) (bool, error)
	AggregateUnblockedFailures(ctx context.Context, since time.Time, min int) ([]model.IPFailureCount, error)
	BlockIP(ctx context.Context, ip string) (int64, error)
	UnblockIP(ctx context.Context, ip string) (int64, error)
	InsertBlockMarker(ctx context.Context, id, ip string, at time.Time) error
	List(ctx context.Context, filter model.LoginAttemptFilter, limit int) ([]*model.LoginAttempt, error)
	CountSince(ctx context.Context, since time.Time) (total, failed int, err error)
	TopFailingIPs(ctx context.Context, since time.Time, limit int) ([]model.IPFailureCount, error)
}

// EventStore persists security events. Implemented by
// repository.SecurityEventRepository.
type EventStore interface {
	Create(ctx context.Context, ev *model.SecurityEvent) error
	GetByID(ctx context.Context, id string) (*model.SecurityEvent, error)
	List(ctx context.Context, filter model.SecurityEventFilter, limit int) ([]*model.SecurityEvent, error)
	Resolve(ctx context.Context, id, resolvedBy string, notes *string, at time.Time) (*model.SecurityEvent, error)
	CountSince(ctx context.Context, since time.Time) (total, critical int, err error)
	TopTypesSince(ctx context.Context, since time.Time, limit int) ([]model.TypeCount, error)
}

// UserStore looks up accounts for the login route
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// BlockStateCache caches the per-address block decision. Implemented by
// cache.BlockCache.
type BlockStateCache interface {
	Get(ctx context.Context, ip string) (blocked, found bool, err error)
	Set(ctx context.Context, ip string, blocked bool) error
	Invalidate(ctx context.Context, ips ...string) error
}

// SweepLock keeps concurrent replicas from sweeping at the same time.
// Implemented by cache.Lock.
type SweepLock interface {
	TryAcquire(ctx context.Context) (string, bool, error)
	Release(ctx context.Context, token string) error
}

// DuplicateSuppressor reports whether a key is new within its period.
// Implemented by cache.Suppressor.
type DuplicateSuppressor interface {
	First(ctx context.Context, key string) (bool, error)
}

// EventPublisher receives every raised security event
type EventPublisher interface {
	Name() string
	Publish(ctx context.Context, ev *model.SecurityEvent) error
}

// AuditStore records admin changes to monitoring state. Implemented by
// repository.AuditRepository.
type AuditStore interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*model.AuditLog, error)
}
