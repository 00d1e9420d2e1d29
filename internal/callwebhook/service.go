package callwebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"partsiq_backend/internal/calls"
	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/events"
	"partsiq_backend/internal/interpreter"
	"partsiq_backend/internal/negotiation"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
)

// Writes for the same call serialize through the store's compare-and-swap;
// a conflict just means another callback won the race, so reload and replay.
const maxWriteAttempts = 3

// StateStore is the call-state surface the turn handler needs.
type StateStore interface {
	Get(ctx context.Context, callID string) (*callstate.CallState, error)
	Write(ctx context.Context, state *callstate.CallState) (bool, error)
	Delete(ctx context.Context, callID string) error
}

// RecordStore reconciles terminal outcomes into the durable tables.
type RecordStore interface {
	MarkTerminal(ctx context.Context, callRecordID uuid.UUID, status, endedReason string, transcript []callstate.Entry, recordingURL string, endedAt time.Time) error
	InsertExtractedQuotes(ctx context.Context, rec *calls.CallRecord, quotes []callstate.QuoteLine) error
	SetRecordingURL(ctx context.Context, callRecordID uuid.UUID, url string) error
}

// Archiver copies provider recordings into object storage.
type Archiver interface {
	Archive(ctx context.Context, callRecordID uuid.UUID, recordingURL string) (string, error)
}

// Service drives one conversation turn: load state, interpret the utterance,
// advance the machine, write back. Terminal provider signals force completion
// from any node.
type Service struct {
	store   StateStore
	machine *negotiation.Machine
	interp  interpreter.Interpreter
	records RecordStore
	archive Archiver
	bus     *events.Bus
	log     *logger.Logger
}

// NewService wires the turn handler. archive may be nil when recording
// storage is disabled.
func NewService(store StateStore, machine *negotiation.Machine, interp interpreter.Interpreter, records RecordStore, archive Archiver, bus *events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		machine: machine,
		interp:  interp,
		records: records,
		archive: archive,
		bus:     bus,
		log:     log,
	}
}

// HandleTurn processes one provider callback. It never returns an error: a
// callback that cannot be matched to live state is logged and ignored, and
// the provider always gets a 200.
func (s *Service) HandleTurn(ctx context.Context, req *TurnRequest) TurnResponse {
	stateID := req.StateID()
	if stateID == "" {
		s.log.WebhookEvent("webhook_missing_correlation", "", "")
		return TurnResponse{}
	}

	switch req.Message.Type {
	case TypeStatusUpdate:
		switch req.Message.Status {
		case ProviderStatusEnded:
			s.forceTerminal(ctx, req, callstate.NodeCompleted)
		case ProviderStatusFailed:
			s.forceTerminal(ctx, req, callstate.NodeFailed)
		}
		return TurnResponse{}

	case TypeEndOfCallReport:
		s.forceTerminal(ctx, req, callstate.NodeCompleted)
		s.attachRecording(ctx, req)
		return TurnResponse{}

	default:
		if !req.Message.SupplierTurn() {
			return TurnResponse{}
		}
		return s.advanceTurn(ctx, stateID, req.Message.Transcript)
	}
}

func (s *Service) advanceTurn(ctx context.Context, stateID, utterance string) TurnResponse {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		state, err := s.store.Get(ctx, stateID)
		if errors.Is(err, callstate.ErrNotFound) {
			s.log.WebhookEvent("webhook_desync", stateID, "")
			return TurnResponse{}
		}
		if err != nil {
			s.log.Error("load call state", "error", err, "call_id", stateID)
			return TurnResponse{}
		}
		if state.Status.Terminal() {
			s.log.WebhookEvent("webhook_desync", stateID, string(state.CurrentNode))
			return TurnResponse{}
		}

		in := s.interp.Interpret(ctx, state.Parts, state.CurrentNode, utterance)
		turn := s.machine.Advance(state, in, time.Now().UTC())

		applied, err := s.store.Write(ctx, state)
		if errors.Is(err, callstate.ErrVersionConflict) {
			continue
		}
		if errors.Is(err, callstate.ErrNotFound) {
			s.log.WebhookEvent("webhook_desync", stateID, "")
			return TurnResponse{}
		}
		if err != nil {
			s.log.Error("write call state", "error", err, "call_id", stateID)
			return TurnResponse{}
		}
		if !applied {
			// Another callback already closed the call out.
			s.log.WebhookEvent("webhook_desync", stateID, string(state.CurrentNode))
			return TurnResponse{}
		}

		if state.CurrentNode.Terminal() {
			s.finalize(ctx, state, "")
		}

		s.log.WebhookEvent("turn_handled", stateID, string(state.CurrentNode))
		return TurnResponse{Reply: turn.Reply, EndCall: turn.EndCall}
	}

	s.log.Warn("turn dropped after repeated write conflicts", "call_id", stateID)
	return TurnResponse{}
}

// forceTerminal moves the state to the given terminal node regardless of the
// current node. A hangup ends the call whether or not the script finished.
func (s *Service) forceTerminal(ctx context.Context, req *TurnRequest, node callstate.Node) {
	stateID := req.StateID()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		state, err := s.store.Get(ctx, stateID)
		if errors.Is(err, callstate.ErrNotFound) {
			// Already reconciled by an earlier callback, or never ours.
			s.log.WebhookEvent("webhook_desync", stateID, "")
			return
		}
		if err != nil {
			s.log.Error("load call state", "error", err, "call_id", stateID)
			return
		}
		if state.Status.Terminal() {
			return
		}

		state.Transition(node)

		applied, err := s.store.Write(ctx, state)
		if errors.Is(err, callstate.ErrVersionConflict) {
			continue
		}
		if err != nil {
			s.log.Error("write call state", "error", err, "call_id", stateID)
			return
		}
		if !applied {
			return
		}

		s.finalize(ctx, state, req.Message.EndedReason)
		return
	}

	s.log.Warn("terminal signal dropped after repeated write conflicts", "call_id", stateID)
}

// finalize reconciles a terminal state into Postgres, publishes the outcome
// event, and removes the store entry. Runs at most once per call: the store
// entry is deleted here, so later callbacks desync harmlessly.
func (s *Service) finalize(ctx context.Context, state *callstate.CallState, endedReason string) {
	now := time.Now().UTC()

	rec := &calls.CallRecord{
		ID:             state.CallRecordID,
		QuoteRequestID: state.QuoteRequestID,
		SupplierID:     state.SupplierID,
		OrganizationID: state.OrganizationID,
	}

	if err := s.records.MarkTerminal(ctx, state.CallRecordID, recordStatus(state.Status), endedReason, state.ConversationHistory, "", now); err != nil {
		s.log.DatabaseError("mark call terminal", err)
	}
	if err := s.records.InsertExtractedQuotes(ctx, rec, state.ExtractedQuotes); err != nil {
		s.log.DatabaseError("insert extracted quotes", err)
	}

	s.bus.Publish(ctx, events.CallEvent{
		Type:           eventType(state.Status),
		CallID:         state.CallID,
		CallRecordID:   state.CallRecordID,
		QuoteRequestID: state.QuoteRequestID,
		SupplierID:     state.SupplierID,
		OrganizationID: state.OrganizationID,
		Reason:         outcomeReason(state, endedReason),
		OccurredAt:     now,
	})

	if err := s.store.Delete(ctx, state.CallID); err != nil {
		s.log.Error("delete call state", "error", err, "call_id", state.CallID)
	}

	s.log.WebhookEvent("call_finalized", state.CallID, string(state.CurrentNode))
}

// attachRecording archives the provider recording and points the call record
// at the archived copy. Best-effort: the call outcome stands without it.
func (s *Service) attachRecording(ctx context.Context, req *TurnRequest) {
	url := req.Message.RecordingURL
	if url == "" {
		return
	}

	recordID, err := uuid.Parse(req.CallRecordID())
	if err != nil {
		s.log.Warn("recording callback without usable record id", "call_id", req.StateID())
		return
	}

	stored := url
	if s.archive != nil {
		archived, err := s.archive.Archive(ctx, recordID, url)
		if err != nil {
			s.log.Warn("recording archival failed, keeping provider url", "error", err, "call_record_id", recordID)
		} else {
			stored = archived
		}
	}

	if err := s.records.SetRecordingURL(ctx, recordID, stored); err != nil {
		s.log.DatabaseError("set recording url", err)
	}
}

// recordStatus maps the store's status onto the call record vocabulary the
// coordinator writes, so call_records.status carries one spelling per outcome.
func recordStatus(status callstate.Status) string {
	switch status {
	case callstate.StatusEscalated:
		return calls.StatusEscalated
	case callstate.StatusFailed:
		return calls.StatusFailed
	default:
		return calls.StatusCompleted
	}
}

func eventType(status callstate.Status) events.Type {
	switch status {
	case callstate.StatusEscalated:
		return events.CallEscalated
	case callstate.StatusFailed:
		return events.CallFailed
	default:
		return events.CallCompleted
	}
}

// outcomeReason summarizes why a call ended, naming the parts that were
// never resolved so an operator knows where the conversation stuck.
func outcomeReason(state *callstate.CallState, endedReason string) string {
	var open []string
	for _, p := range state.Parts {
		if !resolvedPart(state, p.PartNumber) {
			open = append(open, p.PartNumber)
		}
	}

	switch {
	case len(open) > 0 && endedReason != "":
		return fmt.Sprintf("%s; unresolved parts: %s", endedReason, strings.Join(open, ", "))
	case len(open) > 0:
		return "unresolved parts: " + strings.Join(open, ", ")
	default:
		return endedReason
	}
}

func resolvedPart(state *callstate.CallState, partNumber string) bool {
	for _, q := range state.ExtractedQuotes {
		if q.PartNumber == partNumber && (q.PriceCents != nil || q.Availability == "unavailable") {
			return true
		}
	}
	return false
}
