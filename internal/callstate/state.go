// Package callstate holds the transient conversation state for an active
// outbound call and its Redis-backed store. The state is the single source of
// truth between webhook turns; Postgres only sees the final outcome.
package callstate

import (
	"time"

	"github.com/google/uuid"
)

// Node is the conversation node the call is currently in.
type Node string

const (
	NodeGreeting        Node = "GREETING"
	NodePartsRequest    Node = "PARTS_REQUEST"
	NodeNegotiation     Node = "NEGOTIATION"
	NodeClarification   Node = "CLARIFICATION"
	NodeConfirmation    Node = "CONFIRMATION"
	NodeCompleted       Node = "COMPLETED"
	NodeHumanEscalation Node = "HUMAN_ESCALATION"
	NodeFailed          Node = "FAILED"
)

// Terminal reports whether the node ends the conversation.
func (n Node) Terminal() bool {
	switch n {
	case NodeCompleted, NodeHumanEscalation, NodeFailed:
		return true
	}
	return false
}

// Status is the coarse call status mirrored into the store hash so terminal
// detection does not require deserializing the full state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusEscalated  Status = "escalated"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusInProgress
}

// StatusForNode maps a conversation node to its call status.
func StatusForNode(n Node) Status {
	switch n {
	case NodeCompleted:
		return StatusCompleted
	case NodeHumanEscalation:
		return StatusEscalated
	case NodeFailed:
		return StatusFailed
	default:
		return StatusInProgress
	}
}

// Speaker identifies who produced a conversation entry.
type Speaker string

const (
	SpeakerAI       Speaker = "ai"
	SpeakerSupplier Speaker = "supplier"
)

// Entry is one utterance in the conversation history.
type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Part is a line item the agent is sourcing on this call.
type Part struct {
	PartNumber     string `json:"partNumber"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	BudgetMaxCents *int64 `json:"budgetMaxCents,omitempty"`
	Source         string `json:"source,omitempty"`
}

// QuoteLine is a price captured from the supplier for one part.
type QuoteLine struct {
	PartNumber   string `json:"partNumber"`
	PriceCents   *int64 `json:"priceCents,omitempty"`
	Availability string `json:"availability,omitempty"`
	LeadTimeDays *int   `json:"leadTimeDays,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// CallState is the full per-call conversation state.
type CallState struct {
	CallID         string    `json:"callId"`
	CallRecordID   uuid.UUID `json:"callRecordId"`
	QuoteRequestID uuid.UUID `json:"quoteRequestId"`
	SupplierID     uuid.UUID `json:"supplierId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	CallerID       uuid.UUID `json:"callerId"`

	Parts               []Part  `json:"parts"`
	ConversationHistory []Entry `json:"conversationHistory"`

	CurrentNode Node   `json:"currentNode"`
	Status      Status `json:"status"`

	NegotiationAttempts   int  `json:"negotiationAttempts"`
	ClarificationAttempts int  `json:"clarificationAttempts"`
	NeedsHumanEscalation  bool `json:"needsHumanEscalation"`

	ExtractedQuotes []QuoteLine      `json:"extractedQuotes,omitempty"`
	BestOfferCents  map[string]int64 `json:"bestOfferCents,omitempty"`
	PendingCounters map[string]int64 `json:"pendingCounters,omitempty"`

	CustomContext      string `json:"customContext,omitempty"`
	CustomInstructions string `json:"customInstructions,omitempty"`

	// Version is store bookkeeping for optimistic concurrency. It is not
	// serialized into the state payload.
	Version int64 `json:"-"`
}

// AppendEntry records an utterance in the conversation history.
func (s *CallState) AppendEntry(speaker Speaker, text string, at time.Time) {
	s.ConversationHistory = append(s.ConversationHistory, Entry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: at,
	})
}

// Transition moves the state to a new node and syncs the status.
func (s *CallState) Transition(to Node) {
	s.CurrentNode = to
	s.Status = StatusForNode(to)
	if to == NodeHumanEscalation {
		s.NeedsHumanEscalation = true
	}
}

// QuoteFor returns the extracted quote line for a part, creating it if absent.
func (s *CallState) QuoteFor(partNumber string) *QuoteLine {
	for i := range s.ExtractedQuotes {
		if s.ExtractedQuotes[i].PartNumber == partNumber {
			return &s.ExtractedQuotes[i]
		}
	}
	s.ExtractedQuotes = append(s.ExtractedQuotes, QuoteLine{PartNumber: partNumber})
	return &s.ExtractedQuotes[len(s.ExtractedQuotes)-1]
}
