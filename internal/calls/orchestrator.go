package calls

import (
	"context"
	"time"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/credentials"
	"partsiq_backend/internal/negotiation"
	"partsiq_backend/internal/pricing"
	"partsiq_backend/internal/quota"
	"partsiq_backend/internal/vapi"
	"partsiq_backend/platform/apperr"
	"partsiq_backend/platform/config"
	"partsiq_backend/platform/logger"
	"partsiq_backend/platform/phone"

	"github.com/google/uuid"
)

// RecordStore is the repository surface the orchestrator needs.
type RecordStore interface {
	GetSupplier(ctx context.Context, orgID, supplierID uuid.UUID) (*Supplier, error)
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*Organization, error)
	GetQuoteRequestParts(ctx context.Context, quoteRequestID uuid.UUID) ([]callstate.Part, error)
	CreateRecord(ctx context.Context, rec *CallRecord) error
	SubmitBookkeeping(ctx context.Context, callRecordID uuid.UUID, orgID uuid.UUID, providerCallID string) error
}

// QuotaService authorizes call attempts.
type QuotaService interface {
	Authorize(ctx context.Context, orgID uuid.UUID, now time.Time) (quota.Decision, error)
	RecordOverage(ctx context.Context, orgID uuid.UUID)
}

// PriceResolver supplies reference prices for the requested parts.
type PriceResolver interface {
	Resolve(ctx context.Context, orgID, supplierID uuid.UUID, parts []callstate.Part) map[string]pricing.Reference
}

// StateStore is the call-state surface the orchestrator needs.
type StateStore interface {
	Create(ctx context.Context, state *callstate.CallState) error
}

// Submitter places calls with the voice provider.
type Submitter interface {
	CreateCall(ctx context.Context, apiKey string, req *vapi.CreateCallRequest) (*vapi.CreateCallResponse, error)
}

// Orchestrator runs one call attempt end to end: quota, credentials,
// pricing, state seeding, submission, bookkeeping.
type Orchestrator struct {
	records  RecordStore
	quota    QuotaService
	creds    credentials.Provider
	pricing  PriceResolver
	store    StateStore
	provider Submitter
	cfg      config.VapiConfig
	log      *logger.Logger
}

// NewOrchestrator wires the call initiation pipeline.
func NewOrchestrator(
	records RecordStore,
	quotaSvc QuotaService,
	creds credentials.Provider,
	priceResolver PriceResolver,
	store StateStore,
	provider Submitter,
	cfg config.VapiConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		records:  records,
		quota:    quotaSvc,
		creds:    creds,
		pricing:  priceResolver,
		store:    store,
		provider: provider,
		cfg:      cfg,
		log:      log,
	}
}

// Initiate places one call. Any returned error routes through the retry
// coordinator.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) error {
	now := time.Now().UTC()

	decision, err := o.quota.Authorize(ctx, req.OrganizationID, now)
	if err != nil {
		return err
	}

	creds, err := o.creds.Resolve(ctx, req.OrganizationID, credentials.ProviderVapi)
	if err != nil {
		return err
	}

	supplier, err := o.records.GetSupplier(ctx, req.OrganizationID, req.SupplierID)
	if err != nil {
		return err
	}
	if supplier.Phone == "" {
		return apperr.Validation("supplier has no phone number")
	}

	org, err := o.records.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return err
	}

	parts, err := o.records.GetQuoteRequestParts(ctx, req.QuoteRequestID)
	if err != nil {
		return err
	}

	// Pricing never blocks a call; a failed lookup just means no budget.
	refs := o.pricing.Resolve(ctx, req.OrganizationID, req.SupplierID, parts)
	for i := range parts {
		if ref, ok := refs[parts[i].PartNumber]; ok {
			budget := ref.PriceCents
			parts[i].BudgetMaxCents = &budget
		}
	}

	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}

	destination := phone.NormalizeE164(supplier.Phone, org.DefaultPhoneRegion)

	record := &CallRecord{
		ID:             uuid.New(),
		QuoteRequestID: req.QuoteRequestID,
		SupplierID:     req.SupplierID,
		OrganizationID: req.OrganizationID,
		PhoneNumber:    destination,
		Attempt:        attempt,
		Overage:        decision.Overage,
	}
	if err := o.records.CreateRecord(ctx, record); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "create call record", err)
	}

	greeting := negotiation.OpeningLine(supplier.Name)
	state := &callstate.CallState{
		CallID:             uuid.NewString(),
		CallRecordID:       record.ID,
		QuoteRequestID:     req.QuoteRequestID,
		SupplierID:         req.SupplierID,
		OrganizationID:     req.OrganizationID,
		CallerID:           req.CallerID,
		Parts:              parts,
		CurrentNode:        callstate.NodeGreeting,
		Status:             callstate.StatusInProgress,
		CustomContext:      req.CustomContext,
		CustomInstructions: req.CustomInstructions,
	}
	state.AppendEntry(callstate.SpeakerAI, greeting, now)

	// The state must exist before submission: the first webhook turn can
	// arrive before the create-call response does.
	if err := o.store.Create(ctx, state); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "persist call state before submission", err)
	}

	resp, err := o.provider.CreateCall(ctx, creds.APIKey, o.buildCallRequest(state, creds, destination, greeting))
	if err != nil {
		// The seeded state is orphaned; the store TTL reclaims it.
		return err
	}

	if err := o.records.SubmitBookkeeping(ctx, record.ID, req.OrganizationID, resp.ID); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "record call submission", err)
	}

	if decision.Overage {
		o.quota.RecordOverage(ctx, req.OrganizationID)
	}

	o.log.CallEvent("call_submitted", state.CallID, attempt)
	return nil
}

func (o *Orchestrator) buildCallRequest(state *callstate.CallState, creds credentials.Credentials, destination, greeting string) *vapi.CreateCallRequest {
	req := &vapi.CreateCallRequest{
		PhoneNumberID: creds.PhoneNumberID,
		Customer:      vapi.Customer{Number: destination},
		Metadata: map[string]string{
			"quoteRequestId": state.QuoteRequestID.String(),
			"supplierId":     state.SupplierID.String(),
			"organizationId": state.OrganizationID.String(),
			"callLogId":      state.CallRecordID.String(),
			"callStateId":    state.CallID,
		},
	}

	// A pre-configured assistant template wins over inline configuration.
	if creds.AssistantID != "" {
		req.AssistantID = creds.AssistantID
		return req
	}

	req.Assistant = &vapi.Assistant{
		FirstMessage: greeting,
		Server: vapi.Server{
			URL:    o.cfg.GetWebhookBaseURL() + "/api/v1/webhooks/voice",
			Secret: o.cfg.GetWebhookSecret(),
		},
	}
	return req
}
