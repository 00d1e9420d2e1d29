package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"partsiq_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements Repository against Postgres.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewRepository creates a quota repository.
func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// ResetIfNewMonth zeroes the usage counters when the stored reset month
// differs from the current one. The WHERE clause makes the reset happen
// exactly once per month boundary no matter how many workers race here.
func (r *PgRepository) ResetIfNewMonth(ctx context.Context, orgID uuid.UUID, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE organization_quotas
		SET calls_used = 0, overage_calls = 0, last_reset_at = $2
		WHERE organization_id = $1
		  AND date_trunc('month', last_reset_at) <> date_trunc('month', $2::timestamptz)`,
		orgID, now,
	)
	if err != nil {
		return fmt.Errorf("reset monthly quota: %w", err)
	}
	return nil
}

// Get loads the quota row joined with the organization's subscription tier.
func (r *PgRepository) Get(ctx context.Context, orgID uuid.UUID) (*Quota, error) {
	q := &Quota{OrganizationID: orgID}
	err := r.db.QueryRow(ctx, `
		SELECT q.soft_limit, q.hard_cap_enabled, q.hard_cap_multiplier,
		       q.calls_used, q.overage_calls, q.overage_billing_enabled,
		       q.last_reset_at, o.subscription_tier
		FROM organization_quotas q
		JOIN organizations o ON o.id = q.organization_id
		WHERE q.organization_id = $1`,
		orgID,
	).Scan(
		&q.SoftLimit, &q.HardCapEnabled, &q.HardCapMultiplier,
		&q.CallsUsed, &q.OverageCalls, &q.OverageBillingEnabled,
		&q.LastResetAt, &q.Tier,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("organization quota not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("query quota: %w", err)
	}
	return q, nil
}

// RecordOverage bumps the monthly overage counter.
func (r *PgRepository) RecordOverage(ctx context.Context, orgID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE organization_quotas
		SET overage_calls = overage_calls + 1
		WHERE organization_id = $1`,
		orgID,
	)
	if err != nil {
		return fmt.Errorf("record overage: %w", err)
	}
	return nil
}
