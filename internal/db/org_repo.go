package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"tillpoint/internal/types"
)

// OrganizationRepo is the tenant lock surface. Only the billing lock manager
// calls Lock/Unlock; nothing else in the system writes is_active or
// locked_until.
type OrganizationRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewOrganizationRepo creates an OrganizationRepo backed by the given pool
// or transaction.
func NewOrganizationRepo(db DBTX, logger *slog.Logger) *OrganizationRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationRepo{db: db, logger: logger}
}

// Get returns the organization's lock state.
func (r *OrganizationRepo) Get(ctx context.Context, orgID string) (*types.Organization, error) {
	var org types.Organization
	err := r.db.QueryRow(ctx,
		`SELECT id, name, is_active, locked_until, created_at, updated_at
		 FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&org.ID, &org.Name, &org.IsActive, &org.LockedUntil, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrg,
			fmt.Sprintf("organization %s not found", orgID), err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load organization", err)
	}
	return &org, nil
}

// Lock deactivates the organization until the grace deadline.
func (r *OrganizationRepo) Lock(ctx context.Context, orgID string, until time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET is_active = FALSE, locked_until = $1, updated_at = NOW()
		 WHERE id = $2`,
		until, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock organization", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg,
			fmt.Sprintf("organization %s not found for lock", orgID), nil)
	}

	r.logger.WarnContext(ctx, "organization locked",
		"org_id", orgID,
		"locked_until", until,
	)
	return nil
}

// Unlock restores access and clears the lock deadline.
func (r *OrganizationRepo) Unlock(ctx context.Context, orgID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET is_active = TRUE, locked_until = NULL, updated_at = NOW()
		 WHERE id = $1`,
		orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to unlock organization", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg,
			fmt.Sprintf("organization %s not found for unlock", orgID), nil)
	}

	r.logger.InfoContext(ctx, "organization unlocked", "org_id", orgID)
	return nil
}
