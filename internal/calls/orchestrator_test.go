package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/credentials"
	"partsiq_backend/internal/pricing"
	"partsiq_backend/internal/quota"
	"partsiq_backend/internal/vapi"
	"partsiq_backend/platform/apperr"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRecords struct {
	supplier  *Supplier
	org       *Organization
	parts     []callstate.Part
	created   []*CallRecord
	booked    []string
	bookErr   error
	createErr error
}

func (f *fakeRecords) GetSupplier(context.Context, uuid.UUID, uuid.UUID) (*Supplier, error) {
	return f.supplier, nil
}

func (f *fakeRecords) GetOrganization(context.Context, uuid.UUID) (*Organization, error) {
	return f.org, nil
}

func (f *fakeRecords) GetQuoteRequestParts(context.Context, uuid.UUID) ([]callstate.Part, error) {
	return f.parts, nil
}

func (f *fakeRecords) CreateRecord(_ context.Context, rec *CallRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeRecords) SubmitBookkeeping(_ context.Context, _ uuid.UUID, _ uuid.UUID, providerCallID string) error {
	if f.bookErr != nil {
		return f.bookErr
	}
	f.booked = append(f.booked, providerCallID)
	return nil
}

type fakeQuota struct {
	decision quota.Decision
	err      error
	overages int
}

func (f *fakeQuota) Authorize(context.Context, uuid.UUID, time.Time) (quota.Decision, error) {
	return f.decision, f.err
}

func (f *fakeQuota) RecordOverage(context.Context, uuid.UUID) { f.overages++ }

type fakeCreds struct {
	creds credentials.Credentials
	err   error
}

func (f *fakeCreds) Resolve(context.Context, uuid.UUID, string) (credentials.Credentials, error) {
	return f.creds, f.err
}

type fakePricing struct {
	refs map[string]pricing.Reference
}

func (f *fakePricing) Resolve(context.Context, uuid.UUID, uuid.UUID, []callstate.Part) map[string]pricing.Reference {
	return f.refs
}

type fakeStateStore struct {
	states    []*callstate.CallState
	createErr error
}

func (f *fakeStateStore) Create(_ context.Context, state *callstate.CallState) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *state
	f.states = append(f.states, &copied)
	return nil
}

type fakeSubmitter struct {
	requests []*vapi.CreateCallRequest
	resp     *vapi.CreateCallResponse
	err      error
	// submitOrderCheck observes how many states existed at submission time.
	statesAtSubmit int
	store          *fakeStateStore
}

func (f *fakeSubmitter) CreateCall(_ context.Context, _ string, req *vapi.CreateCallRequest) (*vapi.CreateCallResponse, error) {
	f.requests = append(f.requests, req)
	if f.store != nil {
		f.statesAtSubmit = len(f.store.states)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type vapiCfg struct{}

func (vapiCfg) GetVapiBaseURL() string       { return "https://api.vapi.test" }
func (vapiCfg) GetVapiAPIKey() string        { return "platform-key" }
func (vapiCfg) GetVapiPhoneNumberID() string { return "pn-platform" }
func (vapiCfg) GetVapiAssistantID() string   { return "" }
func (vapiCfg) GetWebhookBaseURL() string    { return "https://calls.example.com" }
func (vapiCfg) GetWebhookSecret() string     { return "hook-secret" }

func testDeps() (*fakeRecords, *fakeQuota, *fakeCreds, *fakePricing, *fakeStateStore, *fakeSubmitter) {
	records := &fakeRecords{
		supplier: &Supplier{ID: uuid.New(), Name: "Acme Parts", Phone: "2125550123", Email: "acme@example.com"},
		org:      &Organization{ID: uuid.New(), Name: "Fleet Co", DefaultPhoneRegion: "US"},
		parts: []callstate.Part{
			{PartNumber: "HYD-200", Description: "hydraulic pump", Quantity: 1},
		},
	}
	quotaSvc := &fakeQuota{}
	creds := &fakeCreds{creds: credentials.Credentials{APIKey: "key", PhoneNumberID: "pn-1"}}
	priceRes := &fakePricing{refs: map[string]pricing.Reference{
		"HYD-200": {PartNumber: "HYD-200", PriceCents: 12000, Source: pricing.SourceCatalog},
	}}
	store := &fakeStateStore{}
	submitter := &fakeSubmitter{resp: &vapi.CreateCallResponse{ID: "prov-1"}, store: store}
	return records, quotaSvc, creds, priceRes, store, submitter
}

func newOrchestrator(records *fakeRecords, q *fakeQuota, c *fakeCreds, p *fakePricing, s *fakeStateStore, sub *fakeSubmitter) *Orchestrator {
	return NewOrchestrator(records, q, c, p, s, sub, vapiCfg{}, logger.New("development"))
}

func testRequest() InitiateRequest {
	return InitiateRequest{
		QuoteRequestID: uuid.New(),
		SupplierID:     uuid.New(),
		OrganizationID: uuid.New(),
		ContactMethod:  MethodCall,
		Attempt:        1,
	}
}

func TestInitiateHappyPath(t *testing.T) {
	records, q, c, p, s, sub := testDeps()
	o := newOrchestrator(records, q, c, p, s, sub)

	if err := o.Initiate(context.Background(), testRequest()); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if len(records.created) != 1 {
		t.Fatalf("records created = %d, want 1", len(records.created))
	}
	if records.created[0].PhoneNumber != "+12125550123" {
		t.Errorf("phone = %q, want normalized +12125550123", records.created[0].PhoneNumber)
	}
	if len(records.booked) != 1 || records.booked[0] != "prov-1" {
		t.Errorf("bookkeeping = %v, want [prov-1]", records.booked)
	}

	if len(s.states) != 1 {
		t.Fatalf("states = %d, want 1", len(s.states))
	}
	state := s.states[0]
	if len(state.ConversationHistory) != 1 || state.ConversationHistory[0].Speaker != callstate.SpeakerAI {
		t.Errorf("history = %+v, want one seeded greeting", state.ConversationHistory)
	}
	if state.Parts[0].BudgetMaxCents == nil || *state.Parts[0].BudgetMaxCents != 12000 {
		t.Errorf("budget = %v, want 12000 from reference pricing", state.Parts[0].BudgetMaxCents)
	}

	// The state must be in the store before the provider is called.
	if sub.statesAtSubmit != 1 {
		t.Errorf("states at submission = %d, want 1 (state persisted first)", sub.statesAtSubmit)
	}

	if len(sub.requests) != 1 {
		t.Fatalf("provider requests = %d, want 1", len(sub.requests))
	}
	call := sub.requests[0]
	if call.Metadata["callLogId"] == "" || call.Metadata["callStateId"] == "" {
		t.Errorf("metadata = %v, want correlation ids", call.Metadata)
	}
	if call.Assistant == nil || call.Assistant.Server.Secret != "hook-secret" {
		t.Errorf("assistant = %+v, want inline assistant with webhook secret", call.Assistant)
	}
}

func TestInitiateQuotaRejection(t *testing.T) {
	records, q, c, p, s, sub := testDeps()
	q.err = apperr.QuotaExceeded("monthly call limit reached (50 of 50)")
	o := newOrchestrator(records, q, c, p, s, sub)

	err := o.Initiate(context.Background(), testRequest())
	if !apperr.Is(err, apperr.KindQuotaExceeded) {
		t.Fatalf("err = %v, want QuotaExceeded", err)
	}
	if len(records.created) != 0 {
		t.Error("record created despite quota rejection")
	}
	if len(sub.requests) != 0 {
		t.Error("provider called despite quota rejection")
	}
}

func TestInitiateStateStoreFailureBlocksSubmission(t *testing.T) {
	records, q, c, p, s, sub := testDeps()
	s.createErr = errors.New("redis down")
	o := newOrchestrator(records, q, c, p, s, sub)

	err := o.Initiate(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Initiate err = nil, want state store failure")
	}
	if len(sub.requests) != 0 {
		t.Error("provider called without persisted state")
	}
	if !apperr.Retryable(err) {
		t.Error("state store failure reported non-retryable, want retryable")
	}
}

func TestInitiateProviderRejectionPropagates(t *testing.T) {
	records, q, c, p, s, sub := testDeps()
	sub.err = apperr.Upstream("voice provider rejected call: status 400")
	o := newOrchestrator(records, q, c, p, s, sub)

	err := o.Initiate(context.Background(), testRequest())
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("err = %v, want Upstream", err)
	}
	if len(records.booked) != 0 {
		t.Error("bookkeeping ran despite provider rejection")
	}
}

func TestInitiateAssistantTemplatePrecedence(t *testing.T) {
	records, q, c, p, s, sub := testDeps()
	c.creds.AssistantID = "asst-pinned"
	o := newOrchestrator(records, q, c, p, s, sub)

	if err := o.Initiate(context.Background(), testRequest()); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	call := sub.requests[0]
	if call.AssistantID != "asst-pinned" {
		t.Errorf("AssistantID = %q, want asst-pinned", call.AssistantID)
	}
	if call.Assistant != nil {
		t.Error("inline assistant set alongside template id, want template only")
	}
}

func TestInitiateOverageRecorded(t *testing.T) {
	records, q, c, p, s, sub := testDeps()
	q.decision = quota.Decision{Overage: true}
	o := newOrchestrator(records, q, c, p, s, sub)

	if err := o.Initiate(context.Background(), testRequest()); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if q.overages != 1 {
		t.Errorf("overages recorded = %d, want 1", q.overages)
	}
	if !records.created[0].Overage {
		t.Error("record overage flag = false, want true")
	}
}

func TestInitiateMissingPhone(t *testing.T) {
	records, q, c, p, s, sub := testDeps()
	records.supplier.Phone = ""
	o := newOrchestrator(records, q, c, p, s, sub)

	err := o.Initiate(context.Background(), testRequest())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want Validation", err)
	}
	if apperr.Retryable(err) {
		t.Error("missing phone reported retryable, want non-retryable")
	}
}
