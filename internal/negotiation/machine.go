package negotiation

import (
	"time"

	"partsiq_backend/internal/callstate"
)

// Policy holds the tunable negotiation thresholds.
type Policy struct {
	// MaxNegotiationAttempts caps counter-offers per call.
	MaxNegotiationAttempts int
	// MaxClarificationAttempts caps re-prompts before escalating.
	MaxClarificationAttempts int
	// ToleranceBps is how far above budget a final offer may land and still
	// be accepted, in basis points of the budget.
	ToleranceBps int64
}

// DefaultPolicy mirrors the standard production tunables.
func DefaultPolicy() Policy {
	return Policy{
		MaxNegotiationAttempts:   2,
		MaxClarificationAttempts: 3,
		ToleranceBps:             1000,
	}
}

// Turn is the outcome of advancing the machine one supplier utterance.
type Turn struct {
	Reply   string
	EndCall bool
}

// Machine advances a CallState through the conversation graph.
type Machine struct {
	policy Policy
}

// NewMachine creates a machine with the given policy.
func NewMachine(policy Policy) *Machine {
	return &Machine{policy: policy}
}

type action func(m *Machine, s *callstate.CallState, in Input, now time.Time) Turn

// transitions is the explicit edge table: current node × input kind → action.
// Every reachable edge is enumerated here so behavior is auditable node by
// node; a missing entry means the utterance is treated as unclear.
var transitions = map[callstate.Node]map[Kind]action{
	callstate.NodeGreeting: {
		KindAcknowledge: (*Machine).toPartsRequest,
		KindQuote:       (*Machine).applyQuote,
		KindUnclear:     (*Machine).toClarification,
		KindRefusal:     (*Machine).declineRemaining,
	},
	callstate.NodePartsRequest: {
		KindAcknowledge: (*Machine).promptForPrices,
		KindQuote:       (*Machine).applyQuote,
		KindUnclear:     (*Machine).toClarification,
		KindRefusal:     (*Machine).declineRemaining,
	},
	callstate.NodeNegotiation: {
		KindAcknowledge: (*Machine).acceptPendingCounters,
		KindQuote:       (*Machine).applyQuote,
		KindUnclear:     (*Machine).toClarification,
		KindRefusal:     (*Machine).declineRemaining,
	},
	callstate.NodeClarification: {
		KindAcknowledge: (*Machine).toClarification,
		KindQuote:       (*Machine).applyQuote,
		KindUnclear:     (*Machine).toClarification,
		KindRefusal:     (*Machine).declineRemaining,
	},
	callstate.NodeConfirmation: {
		KindAcknowledge: (*Machine).complete,
		KindQuote:       (*Machine).applyQuote,
		KindUnclear:     (*Machine).restateConfirmation,
		KindRefusal:     (*Machine).escalate,
	},
}

// Advance applies one supplier utterance to the state and returns the next
// spoken line. The supplier entry is always appended to the history; the
// outgoing line is appended only when the call continues.
func (m *Machine) Advance(s *callstate.CallState, in Input, now time.Time) Turn {
	s.AppendEntry(callstate.SpeakerSupplier, in.Utterance, now)

	edges, ok := transitions[s.CurrentNode]
	if !ok {
		// Terminal node: nothing left to say.
		return Turn{EndCall: true}
	}

	act, ok := edges[in.Kind]
	if !ok {
		act = (*Machine).toClarification
	}

	turn := act(m, s, in, now)
	if !s.CurrentNode.Terminal() {
		s.AppendEntry(callstate.SpeakerAI, turn.Reply, now)
	}
	return turn
}

func (m *Machine) toPartsRequest(s *callstate.CallState, _ Input, _ time.Time) Turn {
	s.Transition(callstate.NodePartsRequest)
	return Turn{Reply: partsRequestLine(s.Parts)}
}

func (m *Machine) promptForPrices(s *callstate.CallState, _ Input, _ time.Time) Turn {
	return Turn{Reply: pricePromptLine(m.unresolvedParts(s))}
}

func (m *Machine) toClarification(s *callstate.CallState, _ Input, _ time.Time) Turn {
	s.ClarificationAttempts++
	if s.ClarificationAttempts >= m.policy.MaxClarificationAttempts {
		return m.escalate(s, Input{}, time.Time{})
	}
	s.Transition(callstate.NodeClarification)
	return Turn{Reply: clarificationLine(m.unresolvedParts(s))}
}

func (m *Machine) escalate(s *callstate.CallState, _ Input, _ time.Time) Turn {
	s.Transition(callstate.NodeHumanEscalation)
	return Turn{Reply: escalationLine(), EndCall: true}
}

func (m *Machine) complete(s *callstate.CallState, _ Input, _ time.Time) Turn {
	s.Transition(callstate.NodeCompleted)
	return Turn{Reply: goodbyeLine(), EndCall: true}
}

func (m *Machine) restateConfirmation(s *callstate.CallState, _ Input, _ time.Time) Turn {
	return Turn{Reply: confirmationLine(s.ExtractedQuotes)}
}

// declineRemaining handles a blanket refusal: every unresolved part is marked
// unavailable and the call winds down politely.
func (m *Machine) declineRemaining(s *callstate.CallState, _ Input, _ time.Time) Turn {
	for _, p := range m.unresolvedParts(s) {
		q := s.QuoteFor(p.PartNumber)
		q.Availability = "unavailable"
	}
	s.Transition(callstate.NodeCompleted)
	return Turn{Reply: declinedGoodbyeLine(), EndCall: true}
}

// acceptPendingCounters treats an affirmative during negotiation as the
// supplier agreeing to the outstanding counter-offers.
func (m *Machine) acceptPendingCounters(s *callstate.CallState, in Input, now time.Time) Turn {
	if len(s.PendingCounters) == 0 {
		return m.promptForPrices(s, in, now)
	}

	for partNumber, offer := range s.PendingCounters {
		m.accept(s, partNumber, offer, nil, "")
	}
	s.PendingCounters = nil

	return m.nextStep(s)
}

// applyQuote is the core negotiation edge: each extracted line either resolves
// a part, queues a counter-offer, or flags an escalation. The whole utterance
// is applied before the reply is composed, so an in-budget price in the same
// breath as an over-budget one still lands.
func (m *Machine) applyQuote(s *callstate.CallState, in Input, _ time.Time) Turn {
	if s.CurrentNode == callstate.NodeGreeting || s.CurrentNode == callstate.NodePartsRequest || s.CurrentNode == callstate.NodeClarification {
		s.Transition(callstate.NodeNegotiation)
	}

	var countered []counterOffer
	escalateCall := false
	for _, line := range in.Lines {
		part, ok := m.attributeLine(s, line)
		if !ok {
			continue
		}

		if line.Unavailable {
			q := s.QuoteFor(part.PartNumber)
			q.Availability = "unavailable"
			q.Notes = line.Notes
			delete(s.PendingCounters, part.PartNumber)
			continue
		}
		if line.PriceCents == nil {
			continue
		}
		price := *line.PriceCents

		if s.BestOfferCents == nil {
			s.BestOfferCents = make(map[string]int64)
		}
		if best, ok := s.BestOfferCents[part.PartNumber]; !ok || price < best {
			s.BestOfferCents[part.PartNumber] = price
		}

		budget := part.BudgetMaxCents
		if budget == nil || price <= *budget {
			m.accept(s, part.PartNumber, price, line.LeadTimeDays, line.Notes)
			continue
		}

		if s.NegotiationAttempts < m.policy.MaxNegotiationAttempts {
			if s.PendingCounters == nil {
				s.PendingCounters = make(map[string]int64)
			}
			s.PendingCounters[part.PartNumber] = *budget
			countered = append(countered, counterOffer{partNumber: part.PartNumber, offerCents: *budget})
			continue
		}

		best := s.BestOfferCents[part.PartNumber]
		ceiling := *budget + (*budget*m.policy.ToleranceBps)/10000
		if best <= ceiling {
			m.accept(s, part.PartNumber, best, line.LeadTimeDays, line.Notes)
			continue
		}

		escalateCall = true
	}

	switch {
	case escalateCall:
		return m.escalate(s, in, time.Time{})
	case len(countered) > 0:
		// One attempt per utterance, however many parts it countered.
		s.NegotiationAttempts++
		return Turn{Reply: counterOfferLine(countered)}
	}

	return m.nextStep(s)
}

// accept records a resolved price and clears any outstanding counter.
func (m *Machine) accept(s *callstate.CallState, partNumber string, priceCents int64, leadTimeDays *int, notes string) {
	q := s.QuoteFor(partNumber)
	q.PriceCents = &priceCents
	q.Availability = "available"
	if leadTimeDays != nil {
		q.LeadTimeDays = leadTimeDays
	}
	if notes != "" {
		q.Notes = notes
	}
	delete(s.PendingCounters, partNumber)
}

// nextStep decides where the conversation goes after quote lines are applied:
// confirm when everything is resolved, otherwise keep negotiating.
func (m *Machine) nextStep(s *callstate.CallState) Turn {
	unresolved := m.unresolvedParts(s)
	if len(unresolved) == 0 {
		s.Transition(callstate.NodeConfirmation)
		return Turn{Reply: confirmationLine(s.ExtractedQuotes)}
	}
	return Turn{Reply: pricePromptLine(unresolved)}
}

// attributeLine matches a quoted line to a requested part. An unnamed line is
// attributed to the single unresolved part when that is unambiguous.
func (m *Machine) attributeLine(s *callstate.CallState, line QuotedLine) (callstate.Part, bool) {
	if line.PartNumber != "" {
		for _, p := range s.Parts {
			if p.PartNumber == line.PartNumber {
				return p, true
			}
		}
		return callstate.Part{}, false
	}

	unresolved := m.unresolvedParts(s)
	if len(unresolved) == 1 {
		return unresolved[0], true
	}
	return callstate.Part{}, false
}

func (m *Machine) unresolvedParts(s *callstate.CallState) []callstate.Part {
	var out []callstate.Part
	for _, p := range s.Parts {
		if !m.resolved(s, p.PartNumber) {
			out = append(out, p)
		}
	}
	return out
}

func (m *Machine) resolved(s *callstate.CallState, partNumber string) bool {
	for _, q := range s.ExtractedQuotes {
		if q.PartNumber == partNumber && (q.PriceCents != nil || q.Availability == "unavailable") {
			return true
		}
	}
	return false
}
