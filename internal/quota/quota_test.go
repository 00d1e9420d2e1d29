package quota

import (
	"context"
	"testing"
	"time"

	"partsiq_backend/platform/apperr"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeRepo mimics the conditional-update reset semantics in memory.
type fakeRepo struct {
	quota      Quota
	resetCount int
}

func (f *fakeRepo) ResetIfNewMonth(_ context.Context, _ uuid.UUID, now time.Time) error {
	stored := f.quota.LastResetAt
	if stored.Year() != now.Year() || stored.Month() != now.Month() {
		f.quota.CallsUsed = 0
		f.quota.OverageCalls = 0
		f.quota.LastResetAt = now
		f.resetCount++
	}
	return nil
}

func (f *fakeRepo) Get(_ context.Context, _ uuid.UUID) (*Quota, error) {
	q := f.quota
	return &q, nil
}

func (f *fakeRepo) RecordOverage(_ context.Context, _ uuid.UUID) error {
	f.quota.OverageCalls++
	return nil
}

func newService(q Quota) (*Service, *fakeRepo) {
	repo := &fakeRepo{quota: q}
	return NewService(repo, logger.New("development")), repo
}

func TestAuthorizeHardCapReached(t *testing.T) {
	// softLimit=25, multiplier 2.0 gives a hard limit of 50; usage is
	// already there, so the call must be rejected.
	svc, _ := newService(Quota{
		SoftLimit:         25,
		HardCapEnabled:    true,
		HardCapMultiplier: 2.0,
		CallsUsed:         50,
		LastResetAt:       time.Now(),
	})

	decision, err := svc.Authorize(context.Background(), uuid.New(), time.Now())
	if !apperr.Is(err, apperr.KindQuotaExceeded) {
		t.Fatalf("err = %v, want QuotaExceeded", err)
	}
	if decision.HardLimit != 50 {
		t.Errorf("hard limit = %d, want 50", decision.HardLimit)
	}
}

func TestAuthorizeUnderSoftLimit(t *testing.T) {
	svc, _ := newService(Quota{
		SoftLimit:   25,
		CallsUsed:   10,
		LastResetAt: time.Now(),
	})

	decision, err := svc.Authorize(context.Background(), uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if decision.Overage {
		t.Error("Overage = true under soft limit, want false")
	}
}

func TestAuthorizeSoftLimitOverageDisabled(t *testing.T) {
	svc, _ := newService(Quota{
		SoftLimit:   25,
		CallsUsed:   25,
		LastResetAt: time.Now(),
	})

	if _, err := svc.Authorize(context.Background(), uuid.New(), time.Now()); !apperr.Is(err, apperr.KindQuotaExceeded) {
		t.Errorf("err = %v, want QuotaExceeded", err)
	}
}

func TestAuthorizeSoftLimitOverageEnabled(t *testing.T) {
	svc, _ := newService(Quota{
		SoftLimit:             25,
		CallsUsed:             30,
		OverageBillingEnabled: true,
		LastResetAt:           time.Now(),
	})

	decision, err := svc.Authorize(context.Background(), uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !decision.Overage {
		t.Error("Overage = false, want true past soft limit with overage billing")
	}
}

func TestAuthorizeSafetyCeilingWithoutHardCap(t *testing.T) {
	svc, _ := newService(Quota{
		SoftLimit:             25,
		CallsUsed:             125,
		OverageBillingEnabled: true,
		LastResetAt:           time.Now(),
	})

	if _, err := svc.Authorize(context.Background(), uuid.New(), time.Now()); !apperr.Is(err, apperr.KindQuotaExceeded) {
		t.Errorf("err = %v, want QuotaExceeded at the overage safety ceiling", err)
	}
}

func TestAuthorizeUnlimitedTierBypassesSoftLimit(t *testing.T) {
	svc, _ := newService(Quota{
		SoftLimit:   25,
		CallsUsed:   500,
		Tier:        TierUnlimited,
		LastResetAt: time.Now(),
	})

	decision, err := svc.Authorize(context.Background(), uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if decision.Overage {
		t.Error("Overage = true for unlimited tier, want false")
	}
}

func TestMonthlyResetHappensOncePerBoundary(t *testing.T) {
	lastMonth := time.Date(2026, time.July, 20, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, time.August, 2, 9, 0, 0, 0, time.UTC)

	svc, repo := newService(Quota{
		SoftLimit:   25,
		CallsUsed:   25,
		LastResetAt: lastMonth,
	})

	// First call after the boundary resets and is allowed again.
	if _, err := svc.Authorize(context.Background(), uuid.New(), now); err != nil {
		t.Fatalf("Authorize after boundary: %v", err)
	}
	if repo.quota.CallsUsed != 0 {
		t.Errorf("CallsUsed after reset = %d, want 0", repo.quota.CallsUsed)
	}
	if repo.resetCount != 1 {
		t.Errorf("resetCount = %d, want 1", repo.resetCount)
	}

	// Subsequent authorizations inside the same month never reset again.
	for i := 0; i < 5; i++ {
		if _, err := svc.Authorize(context.Background(), uuid.New(), now.Add(time.Duration(i)*24*time.Hour)); err != nil {
			t.Fatalf("Authorize #%d: %v", i, err)
		}
	}
	if repo.resetCount != 1 {
		t.Errorf("resetCount = %d, want 1 for the whole month", repo.resetCount)
	}
}
