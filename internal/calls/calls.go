// Package calls owns the outbound call lifecycle: quota-checked initiation,
// provider submission, retry and email fallback, and the persisted call
// record.
package calls

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContactMethod is how the organization asked to reach the supplier.
type ContactMethod string

const (
	MethodCall         ContactMethod = "call"
	MethodEmail        ContactMethod = "email"
	MethodCallAndEmail ContactMethod = "call_and_email"
)

// IncludesCall reports whether the method involves placing a call.
func (m ContactMethod) IncludesCall() bool {
	return m == MethodCall || m == MethodCallAndEmail
}

// IncludesEmail reports whether the method involves emailing the supplier.
func (m ContactMethod) IncludesEmail() bool {
	return m == MethodEmail || m == MethodCallAndEmail
}

// InitiateRequest is the job payload for one call attempt. Retries re-enqueue
// it with Attempt incremented; each attempt gets a fresh state and record.
type InitiateRequest struct {
	QuoteRequestID     uuid.UUID     `json:"quoteRequestId"`
	SupplierID         uuid.UUID     `json:"supplierId"`
	OrganizationID     uuid.UUID     `json:"organizationId"`
	CallerID           uuid.UUID     `json:"callerId"`
	ContactMethod      ContactMethod `json:"contactMethod"`
	Attempt            int           `json:"attempt"`
	CustomContext      string        `json:"customContext,omitempty"`
	CustomInstructions string        `json:"customInstructions,omitempty"`
}

// TaskScheduler enqueues lifecycle jobs. Implemented by the scheduler
// package's asynq client.
type TaskScheduler interface {
	ScheduleInitiateCall(ctx context.Context, req InitiateRequest, runAt time.Time) error
	ScheduleRetryCall(ctx context.Context, req InitiateRequest, runAt time.Time) error
	ScheduleFallbackEmail(ctx context.Context, req InitiateRequest, runAt time.Time) error
}

// Call record statuses.
const (
	StatusInitiated = "INITIATED"
	StatusRinging   = "RINGING"
	StatusCompleted = "COMPLETED"
	StatusEscalated = "ESCALATED"
	StatusFailed    = "FAILED"
)

// Supplier is the contact target of a call.
type Supplier struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string
}

// Organization carries the fields call placement needs.
type Organization struct {
	ID                 uuid.UUID
	Name               string
	DefaultPhoneRegion string
}

// CallRecord is the persisted trace of one call attempt.
type CallRecord struct {
	ID             uuid.UUID
	QuoteRequestID uuid.UUID
	SupplierID     uuid.UUID
	OrganizationID uuid.UUID
	PhoneNumber    string
	Status         string
	ProviderCallID string
	Attempt        int
	Overage        bool
	FailureReason  string
	EndedReason    string
	RecordingURL   string
	CreatedAt      time.Time
	EndedAt        *time.Time
}
