package negotiation

import (
	"fmt"
	"strings"

	"partsiq_backend/internal/callstate"
)

// Spoken lines for each conversation node. Kept in one place so the voice of
// the agent stays consistent across edges.

// OpeningLine is the greeting seeded into the conversation history at call
// creation, before the first webhook turn arrives.
func OpeningLine(supplierName string) string {
	if supplierName != "" {
		return fmt.Sprintf("Hi, this is the parts desk calling for %s. I'm looking to get pricing on a few parts today. Do you have a moment?", supplierName)
	}
	return "Hi, this is the parts desk. I'm looking to get pricing on a few parts today. Do you have a moment?"
}

func partsRequestLine(parts []callstate.Part) string {
	var b strings.Builder
	b.WriteString("Great. I need pricing and availability on ")
	b.WriteString(describeParts(parts))
	b.WriteString(". What can you do on those?")
	return b.String()
}

func pricePromptLine(parts []callstate.Part) string {
	return fmt.Sprintf("Could you give me a price on %s?", describeParts(parts))
}

// counterOffer is one part we are pushing back on, with the price we want.
type counterOffer struct {
	partNumber string
	offerCents int64
}

func counterOfferLine(offers []counterOffer) string {
	if len(offers) == 1 {
		return fmt.Sprintf("That's a bit over where I need to be on %s. Could you do %s?", offers[0].partNumber, formatCents(offers[0].offerCents))
	}
	var items []string
	for _, o := range offers {
		items = append(items, fmt.Sprintf("%s at %s", o.partNumber, formatCents(o.offerCents)))
	}
	return fmt.Sprintf("Those are a bit over where I need to be. Could you do %s?", joinSpoken(items))
}

func clarificationLine(parts []callstate.Part) string {
	return fmt.Sprintf("Sorry, I didn't quite catch that. Could you give me the price for %s?", describeParts(parts))
}

func confirmationLine(quotes []callstate.QuoteLine) string {
	var items []string
	for _, q := range quotes {
		switch {
		case q.PriceCents != nil:
			items = append(items, fmt.Sprintf("%s at %s", q.PartNumber, formatCents(*q.PriceCents)))
		case q.Availability == "unavailable":
			items = append(items, fmt.Sprintf("%s not available", q.PartNumber))
		}
	}
	return fmt.Sprintf("Just to confirm: %s. Is that right?", joinSpoken(items))
}

func goodbyeLine() string {
	return "Perfect, thank you for your help. Have a great day."
}

func declinedGoodbyeLine() string {
	return "Understood, no problem. Thanks for your time."
}

func escalationLine() string {
	return "Thanks for the information. Someone from our team will follow up with you directly. Have a good day."
}

func describeParts(parts []callstate.Part) string {
	var items []string
	for _, p := range parts {
		label := p.PartNumber
		if p.Description != "" {
			label = fmt.Sprintf("%s, part number %s", p.Description, p.PartNumber)
		}
		if p.Quantity > 1 {
			label = fmt.Sprintf("%d of %s", p.Quantity, label)
		}
		items = append(items, label)
	}
	return joinSpoken(items)
}

func joinSpoken(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}

func formatCents(cents int64) string {
	if cents%100 == 0 {
		return fmt.Sprintf("%d dollars", cents/100)
	}
	return fmt.Sprintf("%d dollars and %d cents", cents/100, cents%100)
}
