package calls

import (
	"context"
	"time"

	"partsiq_backend/platform/apperr"
	"partsiq_backend/platform/config"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
)

// FailureRecorder is the repository surface the coordinator needs.
type FailureRecorder interface {
	MarkLatestInitiatedFailed(ctx context.Context, quoteRequestID, supplierID uuid.UUID, reason string) (int, error)
}

// Coordinator decides what happens after a failed call attempt: mark the
// record, retry with backoff, or fall back to email.
type Coordinator struct {
	records   FailureRecorder
	scheduler TaskScheduler
	cfg       config.RetryConfig
	log       *logger.Logger
}

// NewCoordinator creates the retry and fallback coordinator.
func NewCoordinator(records FailureRecorder, scheduler TaskScheduler, cfg config.RetryConfig, log *logger.Logger) *Coordinator {
	return &Coordinator{
		records:   records,
		scheduler: scheduler,
		cfg:       cfg,
		log:       log,
	}
}

// HandleFailure records the failure and schedules the follow-up work. The
// record is marked FAILED before any scheduling so a trace survives even if
// the queue loses the jobs.
func (c *Coordinator) HandleFailure(ctx context.Context, req InitiateRequest, callErr error) error {
	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}

	if _, err := c.records.MarkLatestInitiatedFailed(ctx, req.QuoteRequestID, req.SupplierID, callErr.Error()); err != nil {
		c.log.Error("mark call record failed", "error", err,
			"quote_request_id", req.QuoteRequestID, "supplier_id", req.SupplierID)
	}

	emailScheduled := false
	if req.ContactMethod.IncludesEmail() {
		if err := c.scheduler.ScheduleFallbackEmail(ctx, req, time.Now().Add(c.cfg.GetEmailFallbackDelay())); err != nil {
			c.log.Error("schedule fallback email", "error", err, "supplier_id", req.SupplierID)
		} else {
			emailScheduled = true
		}
	}

	if req.ContactMethod.IncludesCall() && apperr.Retryable(callErr) && attempt < c.cfg.GetMaxCallAttempts() {
		retry := req
		retry.Attempt = attempt + 1
		runAt := time.Now().Add(c.backoff(attempt))
		if err := c.scheduler.ScheduleRetryCall(ctx, retry, runAt); err != nil {
			c.log.Error("schedule retry", "error", err, "supplier_id", req.SupplierID)
			return err
		}
		c.log.Info("call retry scheduled", "attempt", retry.Attempt,
			"run_at", runAt, "supplier_id", req.SupplierID)
		return nil
	}

	// Attempts exhausted (or the failure is not retryable): the supplier
	// still gets reached by email even if only calling was requested.
	if !emailScheduled {
		if err := c.scheduler.ScheduleFallbackEmail(ctx, req, time.Now().Add(c.cfg.GetEmailFallbackDelay())); err != nil {
			c.log.Error("schedule exhaustion fallback email", "error", err, "supplier_id", req.SupplierID)
			return err
		}
	}
	return nil
}

// backoff doubles the base delay per completed attempt, capped at the
// configured maximum: with a 2m base and 5m cap the schedule is 2m, 4m, 5m.
func (c *Coordinator) backoff(attempt int) time.Duration {
	delay := c.cfg.GetRetryBaseDelay() << (attempt - 1)
	if max := c.cfg.GetRetryMaxDelay(); delay > max {
		delay = max
	}
	return delay
}
