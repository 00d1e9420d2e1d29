package calls

import (
	"context"
	"time"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
)

// Service is the API-facing surface: accept call submissions and expose call
// outcomes for review.
type Service struct {
	records   *Repository
	scheduler TaskScheduler
	log       *logger.Logger
}

// NewService creates the calls service.
func NewService(records *Repository, scheduler TaskScheduler, log *logger.Logger) *Service {
	return &Service{records: records, scheduler: scheduler, log: log}
}

// Submit validates the target and enqueues the first call attempt. The heavy
// lifting happens on the worker; the API only acknowledges.
func (s *Service) Submit(ctx context.Context, callerID uuid.UUID, req InitiateRequest) error {
	// Fail fast on bad targets so the caller hears about them synchronously
	// instead of via a dead job.
	if _, err := s.records.GetSupplier(ctx, req.OrganizationID, req.SupplierID); err != nil {
		return err
	}
	if _, err := s.records.GetQuoteRequestParts(ctx, req.QuoteRequestID); err != nil {
		return err
	}

	req.CallerID = callerID
	req.Attempt = 1
	if req.ContactMethod == "" {
		req.ContactMethod = MethodCall
	}

	if err := s.scheduler.ScheduleInitiateCall(ctx, req, time.Now()); err != nil {
		return err
	}

	s.log.Info("call submission accepted",
		"quote_request_id", req.QuoteRequestID,
		"supplier_id", req.SupplierID,
		"contact_method", string(req.ContactMethod),
	)
	return nil
}

// CallDetail is a call record with its extracted quotes.
type CallDetail struct {
	Record *CallRecord
	Quotes []callstate.QuoteLine
}

// Get loads a call record with its extracted quotes, scoped to the
// organization.
func (s *Service) Get(ctx context.Context, orgID, callRecordID uuid.UUID) (*CallDetail, error) {
	rec, err := s.records.GetRecord(ctx, orgID, callRecordID)
	if err != nil {
		return nil, err
	}

	quotes, err := s.records.ListQuotes(ctx, callRecordID)
	if err != nil {
		return nil, err
	}

	return &CallDetail{Record: rec, Quotes: quotes}, nil
}
