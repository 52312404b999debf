package billing

import (
	"context"
	"log/slog"
	"time"

	"tillpoint/internal/types"
)

// OrganizationStore is the organization persistence the lock manager needs.
// Implemented by db.OrganizationRepo.
type OrganizationStore interface {
	Get(ctx context.Context, orgID string) (*types.Organization, error)
	Lock(ctx context.Context, orgID string, until time.Time) error
	Unlock(ctx context.Context, orgID string) error
}

// LockManager is the sole writer of organization access state. Ledger
// transitions go through it; nothing else in the system touches is_active or
// locked_until.
type LockManager struct {
	orgs   OrganizationStore
	logger *slog.Logger
}

// NewLockManager creates a LockManager. A nil logger falls back to
// slog.Default().
func NewLockManager(orgs OrganizationStore, logger *slog.Logger) *LockManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockManager{orgs: orgs, logger: logger}
}

// Lock deactivates the organization until the grace deadline. A lock already
// in place with a later deadline is left alone; deadlines only move forward.
func (m *LockManager) Lock(ctx context.Context, orgID string, until time.Time) error {
	org, err := m.orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}
	if !org.IsActive && org.LockedUntil != nil && org.LockedUntil.After(until) {
		m.logger.InfoContext(ctx, "organization already locked past deadline",
			"org_id", orgID,
			"locked_until", org.LockedUntil,
		)
		return nil
	}
	return m.orgs.Lock(ctx, orgID, until)
}

// Unlock restores access. Unlocking an already active organization is a
// no-op, which keeps the success path of every charge idempotent.
func (m *LockManager) Unlock(ctx context.Context, orgID string) error {
	org, err := m.orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}
	if org.IsActive {
		return nil
	}
	return m.orgs.Unlock(ctx, orgID)
}
