package negotiation

import (
	"testing"
	"time"

	"partsiq_backend/internal/callstate"
)

func cents(v int64) *int64 { return &v }

func newCallState(parts ...callstate.Part) *callstate.CallState {
	s := &callstate.CallState{
		CallID:      "call-1",
		CurrentNode: callstate.NodeGreeting,
		Status:      callstate.StatusInProgress,
		Parts:       parts,
	}
	s.AppendEntry(callstate.SpeakerAI, OpeningLine("Acme Parts"), time.Now())
	return s
}

func advance(t *testing.T, m *Machine, s *callstate.CallState, in Input) Turn {
	t.Helper()
	return m.Advance(s, in, time.Now())
}

func TestGreetingToPartsRequest(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "ALT-9921", Quantity: 1})

	turn := advance(t, m, s, Input{Kind: KindAcknowledge, Utterance: "sure, go ahead"})

	if s.CurrentNode != callstate.NodePartsRequest {
		t.Errorf("node = %q, want PARTS_REQUEST", s.CurrentNode)
	}
	if turn.EndCall {
		t.Error("EndCall = true, want false")
	}
	if turn.Reply == "" {
		t.Error("expected a spoken parts request")
	}
	// Supplier utterance plus our reply on top of the seeded greeting.
	if len(s.ConversationHistory) != 3 {
		t.Errorf("history length = %d, want 3", len(s.ConversationHistory))
	}
}

func TestCounterOfferAcceptedOnRequote(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "HYD-200", Quantity: 1, BudgetMaxCents: cents(12000)})
	s.Transition(callstate.NodeNegotiation)

	turn := advance(t, m, s, Input{
		Kind:      KindQuote,
		Utterance: "that one is 150",
		Lines:     []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(15000)}},
	})
	if s.NegotiationAttempts != 1 {
		t.Errorf("negotiationAttempts = %d, want 1", s.NegotiationAttempts)
	}
	if s.CurrentNode != callstate.NodeNegotiation {
		t.Errorf("node = %q, want NEGOTIATION", s.CurrentNode)
	}
	if turn.EndCall {
		t.Error("EndCall = true after counter-offer")
	}

	advance(t, m, s, Input{
		Kind:      KindQuote,
		Utterance: "okay, I can do 118",
		Lines:     []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(11800)}},
	})
	if s.NegotiationAttempts != 1 {
		t.Errorf("negotiationAttempts = %d, want 1 (accepting must not increment)", s.NegotiationAttempts)
	}
	if s.CurrentNode != callstate.NodeConfirmation {
		t.Errorf("node = %q, want CONFIRMATION", s.CurrentNode)
	}
	if len(s.ExtractedQuotes) != 1 {
		t.Fatalf("extractedQuotes length = %d, want 1", len(s.ExtractedQuotes))
	}
	q := s.ExtractedQuotes[0]
	if q.PartNumber != "HYD-200" || q.PriceCents == nil || *q.PriceCents != 11800 {
		t.Errorf("extracted quote = %+v, want HYD-200 at 11800", q)
	}
}

func TestMixedUtteranceKeepsInBudgetQuote(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(
		callstate.Part{PartNumber: "HYD-200", Quantity: 1, BudgetMaxCents: cents(12000)},
		callstate.Part{PartNumber: "ALT-9921", Quantity: 1, BudgetMaxCents: cents(20000)},
	)
	s.Transition(callstate.NodeNegotiation)

	// Both prices in one breath: HYD-200 over budget, ALT-9921 within it.
	turn := advance(t, m, s, Input{
		Kind:      KindQuote,
		Utterance: "the pump is 150 and the alternator is 180",
		Lines: []QuotedLine{
			{PartNumber: "HYD-200", PriceCents: cents(15000)},
			{PartNumber: "ALT-9921", PriceCents: cents(18000)},
		},
	})

	q := s.QuoteFor("ALT-9921")
	if q.PriceCents == nil || *q.PriceCents != 18000 {
		t.Errorf("ALT-9921 price = %v, want 18000 accepted", q.PriceCents)
	}
	if s.BestOfferCents["ALT-9921"] != 18000 {
		t.Errorf("BestOfferCents[ALT-9921] = %d, want 18000", s.BestOfferCents["ALT-9921"])
	}
	if got := s.PendingCounters["HYD-200"]; got != 12000 {
		t.Errorf("PendingCounters[HYD-200] = %d, want 12000", got)
	}
	if s.NegotiationAttempts != 1 {
		t.Errorf("negotiationAttempts = %d, want 1 for one countered utterance", s.NegotiationAttempts)
	}
	if turn.EndCall {
		t.Error("EndCall = true, want the counter-offer to keep the call going")
	}
	if turn.Reply == "" {
		t.Error("expected a spoken counter-offer")
	}
}

func TestNoBudgetAcceptsFirstQuote(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "ALT-9921", Quantity: 2})
	s.Transition(callstate.NodeNegotiation)

	advance(t, m, s, Input{
		Kind:      KindQuote,
		Utterance: "those run 300 each",
		Lines:     []QuotedLine{{PartNumber: "ALT-9921", PriceCents: cents(30000)}},
	})

	if s.NegotiationAttempts != 0 {
		t.Errorf("negotiationAttempts = %d, want 0", s.NegotiationAttempts)
	}
	if len(s.ExtractedQuotes) != 1 || s.ExtractedQuotes[0].PriceCents == nil || *s.ExtractedQuotes[0].PriceCents != 30000 {
		t.Errorf("extractedQuotes = %+v, want ALT-9921 at 30000", s.ExtractedQuotes)
	}
	if s.CurrentNode != callstate.NodeConfirmation {
		t.Errorf("node = %q, want CONFIRMATION", s.CurrentNode)
	}
}

func TestToleranceAcceptanceAtAttemptCap(t *testing.T) {
	m := NewMachine(Policy{MaxNegotiationAttempts: 1, MaxClarificationAttempts: 3, ToleranceBps: 1000})
	s := newCallState(callstate.Part{PartNumber: "HYD-200", Quantity: 1, BudgetMaxCents: cents(10000)})
	s.Transition(callstate.NodeNegotiation)

	// First over-budget quote spends the only attempt.
	advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(12000)}},
	})

	// Requote within 10% of budget: accepted as the best offer.
	advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(10900)}},
	})

	if s.CurrentNode != callstate.NodeConfirmation {
		t.Fatalf("node = %q, want CONFIRMATION", s.CurrentNode)
	}
	q := s.ExtractedQuotes[0]
	if q.PriceCents == nil || *q.PriceCents != 10900 {
		t.Errorf("accepted price = %v, want 10900", q.PriceCents)
	}
}

func TestEscalationBeyondTolerance(t *testing.T) {
	m := NewMachine(Policy{MaxNegotiationAttempts: 1, MaxClarificationAttempts: 3, ToleranceBps: 1000})
	s := newCallState(callstate.Part{PartNumber: "HYD-200", Quantity: 1, BudgetMaxCents: cents(10000)})
	s.Transition(callstate.NodeNegotiation)

	advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(15000)}},
	})
	turn := advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(14000)}},
	})

	if s.CurrentNode != callstate.NodeHumanEscalation {
		t.Errorf("node = %q, want HUMAN_ESCALATION", s.CurrentNode)
	}
	if !s.NeedsHumanEscalation {
		t.Error("NeedsHumanEscalation = false, want true")
	}
	if s.Status != callstate.StatusEscalated {
		t.Errorf("status = %q, want escalated", s.Status)
	}
	if !turn.EndCall {
		t.Error("EndCall = false, want true")
	}
}

func TestClarificationCapEscalates(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "ALT-9921", Quantity: 1})
	s.Transition(callstate.NodeNegotiation)

	var turn Turn
	for i := 0; i < 3; i++ {
		turn = advance(t, m, s, Input{Kind: KindUnclear, Utterance: "hold on, let me check something"})
	}

	if s.ClarificationAttempts != 3 {
		t.Errorf("clarificationAttempts = %d, want 3", s.ClarificationAttempts)
	}
	if s.CurrentNode != callstate.NodeHumanEscalation {
		t.Errorf("node = %q, want HUMAN_ESCALATION", s.CurrentNode)
	}
	if !s.NeedsHumanEscalation {
		t.Error("NeedsHumanEscalation = false, want true")
	}
	if s.Status != callstate.StatusEscalated {
		t.Errorf("status = %q, want escalated", s.Status)
	}
	if !turn.EndCall {
		t.Error("EndCall = false, want true")
	}
}

func TestClarificationRecoversOnQuote(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "ALT-9921", Quantity: 1})
	s.Transition(callstate.NodeNegotiation)

	advance(t, m, s, Input{Kind: KindUnclear, Utterance: "what was that?"})
	if s.CurrentNode != callstate.NodeClarification {
		t.Fatalf("node = %q, want CLARIFICATION", s.CurrentNode)
	}

	advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "ALT-9921", PriceCents: cents(9900)}},
	})
	if s.CurrentNode != callstate.NodeConfirmation {
		t.Errorf("node = %q, want CONFIRMATION", s.CurrentNode)
	}
}

func TestUnavailablePartExcludedWithoutBlockingOthers(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(
		callstate.Part{PartNumber: "ALT-9921", Quantity: 1},
		callstate.Part{PartNumber: "HYD-200", Quantity: 1},
	)
	s.Transition(callstate.NodeNegotiation)

	turn := advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "ALT-9921", Unavailable: true}},
	})
	if s.CurrentNode != callstate.NodeNegotiation {
		t.Errorf("node = %q, want NEGOTIATION (HYD-200 still open)", s.CurrentNode)
	}
	if turn.EndCall {
		t.Error("EndCall = true with an open part")
	}

	advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(8000)}},
	})
	if s.CurrentNode != callstate.NodeConfirmation {
		t.Errorf("node = %q, want CONFIRMATION", s.CurrentNode)
	}

	var unavailable, priced bool
	for _, q := range s.ExtractedQuotes {
		switch q.PartNumber {
		case "ALT-9921":
			unavailable = q.Availability == "unavailable"
		case "HYD-200":
			priced = q.PriceCents != nil && *q.PriceCents == 8000
		}
	}
	if !unavailable || !priced {
		t.Errorf("extractedQuotes = %+v, want ALT-9921 unavailable and HYD-200 at 8000", s.ExtractedQuotes)
	}
}

func TestConfirmationAcknowledgeCompletes(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "ALT-9921", Quantity: 1})
	s.Transition(callstate.NodeNegotiation)

	advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "ALT-9921", PriceCents: cents(9900)}},
	})
	turn := advance(t, m, s, Input{Kind: KindAcknowledge, Utterance: "yep, that's right"})

	if s.CurrentNode != callstate.NodeCompleted {
		t.Errorf("node = %q, want COMPLETED", s.CurrentNode)
	}
	if s.Status != callstate.StatusCompleted {
		t.Errorf("status = %q, want completed", s.Status)
	}
	if !turn.EndCall {
		t.Error("EndCall = false, want true")
	}
}

func TestAcknowledgeAcceptsPendingCounter(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "HYD-200", Quantity: 1, BudgetMaxCents: cents(12000)})
	s.Transition(callstate.NodeNegotiation)

	advance(t, m, s, Input{
		Kind:  KindQuote,
		Lines: []QuotedLine{{PartNumber: "HYD-200", PriceCents: cents(15000)}},
	})
	advance(t, m, s, Input{Kind: KindAcknowledge, Utterance: "alright, I can do that"})

	if s.CurrentNode != callstate.NodeConfirmation {
		t.Errorf("node = %q, want CONFIRMATION", s.CurrentNode)
	}
	q := s.ExtractedQuotes[0]
	if q.PriceCents == nil || *q.PriceCents != 12000 {
		t.Errorf("accepted price = %v, want counter-offer 12000", q.PriceCents)
	}
	if len(s.PendingCounters) != 0 {
		t.Errorf("PendingCounters = %v, want empty", s.PendingCounters)
	}
}

func TestRefusalMarksRemainingUnavailable(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(
		callstate.Part{PartNumber: "ALT-9921", Quantity: 1},
		callstate.Part{PartNumber: "HYD-200", Quantity: 1},
	)

	turn := advance(t, m, s, Input{Kind: KindRefusal, Utterance: "we don't carry those"})

	if s.CurrentNode != callstate.NodeCompleted {
		t.Errorf("node = %q, want COMPLETED", s.CurrentNode)
	}
	if !turn.EndCall {
		t.Error("EndCall = false, want true")
	}
	if len(s.ExtractedQuotes) != 2 {
		t.Fatalf("extractedQuotes length = %d, want 2", len(s.ExtractedQuotes))
	}
	for _, q := range s.ExtractedQuotes {
		if q.Availability != "unavailable" {
			t.Errorf("part %s availability = %q, want unavailable", q.PartNumber, q.Availability)
		}
	}
}

func TestHistoryGrowsMonotonically(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "ALT-9921", Quantity: 1, BudgetMaxCents: cents(10000)})

	inputs := []Input{
		{Kind: KindAcknowledge, Utterance: "sure"},
		{Kind: KindUnclear, Utterance: "hang on"},
		{Kind: KindQuote, Utterance: "120", Lines: []QuotedLine{{PartNumber: "ALT-9921", PriceCents: cents(12000)}}},
		{Kind: KindQuote, Utterance: "95 works", Lines: []QuotedLine{{PartNumber: "ALT-9921", PriceCents: cents(9500)}}},
		{Kind: KindAcknowledge, Utterance: "correct"},
	}

	prev := len(s.ConversationHistory)
	for i, in := range inputs {
		advance(t, m, s, in)
		if got := len(s.ConversationHistory); got < prev {
			t.Fatalf("turn %d: history shrank from %d to %d", i, prev, got)
		} else {
			prev = got
		}
	}
	if s.CurrentNode != callstate.NodeCompleted {
		t.Errorf("node = %q, want COMPLETED", s.CurrentNode)
	}
}

func TestTerminalStateIgnoresFurtherTurns(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := newCallState(callstate.Part{PartNumber: "ALT-9921", Quantity: 1})
	s.Transition(callstate.NodeCompleted)

	historyBefore := len(s.ConversationHistory)
	turn := advance(t, m, s, Input{Kind: KindQuote, Utterance: "actually it's 50"})

	if !turn.EndCall {
		t.Error("EndCall = false, want true")
	}
	if s.CurrentNode != callstate.NodeCompleted {
		t.Errorf("node = %q, want COMPLETED", s.CurrentNode)
	}
	// Only the supplier utterance lands; no reply is generated.
	if len(s.ConversationHistory) != historyBefore+1 {
		t.Errorf("history length = %d, want %d", len(s.ConversationHistory), historyBefore+1)
	}
}
