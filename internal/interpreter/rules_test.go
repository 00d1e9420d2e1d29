package interpreter

import (
	"context"
	"testing"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/negotiation"
)

func twoParts() []callstate.Part {
	return []callstate.Part{
		{PartNumber: "HYD-200", Description: "hydraulic pump", Quantity: 1},
		{PartNumber: "ALT-9921", Description: "alternator", Quantity: 2},
	}
}

func TestRuleBasedClassification(t *testing.T) {
	r := NewRuleBased()
	ctx := context.Background()

	tests := []struct {
		name      string
		node      callstate.Node
		utterance string
		wantKind  negotiation.Kind
	}{
		{"plain yes", callstate.NodeGreeting, "Yes, go ahead", negotiation.KindAcknowledge},
		{"sounds good", callstate.NodeConfirmation, "sounds good to me", negotiation.KindAcknowledge},
		{"refusal", callstate.NodePartsRequest, "Sorry, we don't carry hydraulics", negotiation.KindRefusal},
		{"stop calling", callstate.NodeGreeting, "Stop calling this number", negotiation.KindRefusal},
		{"dollar quote", callstate.NodeNegotiation, "The HYD-200 runs $150", negotiation.KindQuote},
		{"out of stock", callstate.NodeNegotiation, "That one's out of stock right now", negotiation.KindQuote},
		{"mumble", callstate.NodePartsRequest, "hang on a sec, let me transfer you", negotiation.KindUnclear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := r.Interpret(ctx, twoParts(), tt.node, tt.utterance)
			if in.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", in.Kind, tt.wantKind)
			}
		})
	}
}

func TestRuleBasedPriceExtraction(t *testing.T) {
	r := NewRuleBased()

	in := r.Interpret(context.Background(), twoParts(), callstate.NodeNegotiation, "HYD-200 is $149.50 each")
	if in.Kind != negotiation.KindQuote {
		t.Fatalf("kind = %q, want quote", in.Kind)
	}
	if len(in.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(in.Lines))
	}
	line := in.Lines[0]
	if line.PartNumber != "HYD-200" {
		t.Errorf("part = %q, want HYD-200", line.PartNumber)
	}
	if line.PriceCents == nil || *line.PriceCents != 14950 {
		t.Errorf("price = %v, want 14950", line.PriceCents)
	}
}

func TestRuleBasedPartDigitsNotReadAsPrice(t *testing.T) {
	r := NewRuleBased()

	// The 200 in HYD-200 must not be mistaken for a price.
	in := r.Interpret(context.Background(), twoParts(), callstate.NodeNegotiation, "let me look up the HYD-200 for you")
	if in.Kind == negotiation.KindQuote {
		t.Errorf("kind = quote with lines %+v, want no price from the part number", in.Lines)
	}
}

func TestRuleBasedBareNumberMidNegotiation(t *testing.T) {
	r := NewRuleBased()
	parts := []callstate.Part{{PartNumber: "HYD-200", Quantity: 1}}

	in := r.Interpret(context.Background(), parts, callstate.NodeNegotiation, "best I can do is 118")
	if in.Kind != negotiation.KindQuote {
		t.Fatalf("kind = %q, want quote", in.Kind)
	}
	if len(in.Lines) != 1 || in.Lines[0].PriceCents == nil || *in.Lines[0].PriceCents != 11800 {
		t.Errorf("lines = %+v, want one unnamed price of 11800", in.Lines)
	}

	// Outside negotiation a bare number is not trusted as a price.
	in = r.Interpret(context.Background(), parts, callstate.NodeGreeting, "extension 118 please")
	if in.Kind == negotiation.KindQuote {
		t.Errorf("kind = quote in greeting, want unclear")
	}
}

func TestRuleBasedMultiplePartsZipped(t *testing.T) {
	r := NewRuleBased()

	in := r.Interpret(context.Background(), twoParts(), callstate.NodeNegotiation,
		"HYD-200 is $150 and ALT-9921 is $89 each")
	if in.Kind != negotiation.KindQuote {
		t.Fatalf("kind = %q, want quote", in.Kind)
	}
	if len(in.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(in.Lines))
	}
	if in.Lines[0].PartNumber != "HYD-200" || *in.Lines[0].PriceCents != 15000 {
		t.Errorf("line 0 = %+v, want HYD-200 at 15000", in.Lines[0])
	}
	if in.Lines[1].PartNumber != "ALT-9921" || *in.Lines[1].PriceCents != 8900 {
		t.Errorf("line 1 = %+v, want ALT-9921 at 8900", in.Lines[1])
	}
}

func TestRuleBasedUnavailableNamedPart(t *testing.T) {
	r := NewRuleBased()

	in := r.Interpret(context.Background(), twoParts(), callstate.NodeNegotiation,
		"the ALT-9921 is discontinued")
	if in.Kind != negotiation.KindQuote {
		t.Fatalf("kind = %q, want quote", in.Kind)
	}
	if len(in.Lines) != 1 || in.Lines[0].PartNumber != "ALT-9921" || !in.Lines[0].Unavailable {
		t.Errorf("lines = %+v, want ALT-9921 unavailable", in.Lines)
	}
}
