// Package negotiation implements the turn-by-turn conversation policy for an
// outbound sourcing call. The machine is a pure function over a CallState and
// a classified supplier utterance; all side effects live in the callers.
package negotiation

// Kind classifies a supplier utterance.
type Kind string

const (
	// KindAcknowledge is an affirmative with no price content ("sure",
	// "sounds good", "that works").
	KindAcknowledge Kind = "acknowledge"
	// KindQuote carries one or more price or availability answers.
	KindQuote Kind = "quote"
	// KindUnclear could not be parsed into an answer.
	KindUnclear Kind = "unclear"
	// KindRefusal is a blanket decline ("we don't carry those", "not
	// interested").
	KindRefusal Kind = "refusal"
)

// QuotedLine is one price or availability statement extracted from an
// utterance. An empty PartNumber means the supplier did not name the part;
// the machine attributes it to the open part under discussion.
type QuotedLine struct {
	PartNumber   string
	PriceCents   *int64
	Unavailable  bool
	LeadTimeDays *int
	Notes        string
}

// Input is a classified supplier utterance.
type Input struct {
	Kind      Kind
	Utterance string
	Lines     []QuotedLine
}
