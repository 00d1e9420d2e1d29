// Package quota enforces per-organization monthly call limits. Usage resets
// on the first authorization after a calendar month boundary and increments
// atomically in the call bookkeeping transaction, never read-modify-write in
// application code.
package quota

import (
	"context"
	"fmt"
	"math"
	"time"

	"partsiq_backend/platform/apperr"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
)

// TierUnlimited marks organizations with no soft-limit enforcement.
const TierUnlimited = "unlimited"

// safetyCeilingMultiplier bounds overage growth for organizations billing
// overage without an explicit hard cap.
const safetyCeilingMultiplier = 5

// Quota is an organization's monthly call allowance and current usage.
type Quota struct {
	OrganizationID        uuid.UUID
	SoftLimit             int
	HardCapEnabled        bool
	HardCapMultiplier     float64
	CallsUsed             int
	OverageCalls          int
	OverageBillingEnabled bool
	LastResetAt           time.Time
	Tier                  string
}

// HardLimit returns the computed hard cap, or -1 when unlimited.
func (q *Quota) HardLimit() int {
	if !q.HardCapEnabled {
		return -1
	}
	return int(math.Floor(float64(q.SoftLimit) * q.HardCapMultiplier))
}

// Decision is the outcome of an authorization check for one call.
type Decision struct {
	// Overage marks the call for overage billing after success.
	Overage bool
	// HardLimit is the computed cap, -1 when unlimited.
	HardLimit int
}

// Repository is the persistence surface the service needs.
type Repository interface {
	// ResetIfNewMonth zeroes usage when the stored reset month differs
	// from now's month. Must be a single conditional update.
	ResetIfNewMonth(ctx context.Context, orgID uuid.UUID, now time.Time) error
	// Get loads the quota row joined with the organization tier.
	Get(ctx context.Context, orgID uuid.UUID) (*Quota, error)
	// RecordOverage bumps the overage counter. Best-effort.
	RecordOverage(ctx context.Context, orgID uuid.UUID) error
}

// Service authorizes call attempts against the organization quota.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a quota service.
func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Authorize checks whether the organization may place one more call this
// month. It resets the monthly counter first when the calendar month has
// rolled over. A rejected call returns a QuotaExceeded error.
func (s *Service) Authorize(ctx context.Context, orgID uuid.UUID, now time.Time) (Decision, error) {
	if err := s.repo.ResetIfNewMonth(ctx, orgID, now); err != nil {
		return Decision{}, fmt.Errorf("reset quota month: %w", err)
	}

	q, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return Decision{}, fmt.Errorf("load quota: %w", err)
	}

	hardLimit := q.HardLimit()
	if hardLimit >= 0 && q.CallsUsed >= hardLimit {
		return Decision{HardLimit: hardLimit}, apperr.QuotaExceeded(
			fmt.Sprintf("monthly call limit reached (%d of %d)", q.CallsUsed, hardLimit))
	}

	if q.CallsUsed < q.SoftLimit || q.Tier == TierUnlimited {
		return Decision{HardLimit: hardLimit}, nil
	}

	if !q.OverageBillingEnabled {
		return Decision{HardLimit: hardLimit}, apperr.QuotaExceeded(
			fmt.Sprintf("monthly call limit reached (%d of %d); overage billing is disabled", q.CallsUsed, q.SoftLimit))
	}

	if !q.HardCapEnabled && q.CallsUsed >= q.SoftLimit*safetyCeilingMultiplier {
		return Decision{HardLimit: hardLimit}, apperr.QuotaExceeded(
			fmt.Sprintf("overage safety ceiling reached (%d calls)", q.CallsUsed))
	}

	return Decision{Overage: true, HardLimit: hardLimit}, nil
}

// RecordOverage notes an overage call after successful submission. Failures
// are logged, never surfaced: billing reconciliation must not fail a call
// that already went out.
func (s *Service) RecordOverage(ctx context.Context, orgID uuid.UUID) {
	if err := s.repo.RecordOverage(ctx, orgID); err != nil {
		s.log.Error("record overage failed", "organization_id", orgID, "error", err)
	}
}
