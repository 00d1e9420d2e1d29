package interpreter

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/negotiation"
)

// RuleBased classifies utterances with keyword and price-pattern matching.
// It is deliberately conservative: anything it cannot read confidently is
// reported unclear so the machine re-prompts instead of guessing.
type RuleBased struct{}

// NewRuleBased creates a rule-based interpreter.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

var (
	// Dollar amounts: "$150", "150.00", "150 dollars", "150 bucks", "150 each".
	priceRe = regexp.MustCompile(`(?i)(?:\$\s*(\d{1,6})(?:[.,](\d{1,2}))?|(\d{1,6})(?:[.,](\d{1,2}))?\s*(?:dollars|bucks|each|apiece|per unit))`)
	// Bare numbers, trusted only mid-negotiation where a number is almost
	// always a price ("I can do 118").
	bareNumberRe = regexp.MustCompile(`\b(\d{1,6})(?:[.,](\d{1,2}))?\b`)

	refusalPhrases = []string{
		"don't carry", "do not carry", "don't sell", "do not sell",
		"not interested", "can't help", "cannot help", "wrong number",
		"don't deal", "no thanks", "stop calling",
	}
	unavailablePhrases = []string{
		"out of stock", "unavailable", "don't have", "do not have",
		"don't stock", "no stock", "discontinued", "can't get", "cannot get",
	}
	ackPhrases = []string{
		"yes", "yeah", "yep", "sure", "correct", "right", "okay", "ok",
		"sounds good", "that works", "works for me", "deal", "go ahead",
		"absolutely", "of course", "fine", "alright", "perfect",
	}
)

// Interpret classifies an utterance. Part numbers mentioned in the text are
// attributed to their matching quoted lines; an unnamed single price is left
// for the machine to attribute.
func (r *RuleBased) Interpret(_ context.Context, parts []callstate.Part, node callstate.Node, utterance string) negotiation.Input {
	in := negotiation.Input{Utterance: utterance, Kind: negotiation.KindUnclear}
	lowered := strings.ToLower(utterance)

	if containsAny(lowered, refusalPhrases) {
		in.Kind = negotiation.KindRefusal
		return in
	}

	mentioned, scrubbed := scrubPartNumbers(lowered, parts)
	prices := extractPricesCents(scrubbed)
	if len(prices) == 0 && (node == callstate.NodeNegotiation || node == callstate.NodeClarification) {
		prices = extractBareNumbersCents(scrubbed)
	}
	unavailable := containsAny(lowered, unavailablePhrases)

	switch {
	case len(prices) > 0:
		in.Kind = negotiation.KindQuote
		in.Lines = attributeLines(mentioned, prices)
		if unavailable && len(mentioned) > len(prices) {
			// Priced some parts, declared the rest out of stock.
			for _, pn := range mentioned[len(prices):] {
				in.Lines = append(in.Lines, negotiation.QuotedLine{PartNumber: pn, Unavailable: true})
			}
		}
	case unavailable:
		in.Kind = negotiation.KindQuote
		if len(mentioned) == 0 {
			in.Lines = []negotiation.QuotedLine{{Unavailable: true}}
		}
		for _, pn := range mentioned {
			in.Lines = append(in.Lines, negotiation.QuotedLine{PartNumber: pn, Unavailable: true})
		}
	case isAcknowledgment(lowered):
		in.Kind = negotiation.KindAcknowledge
	}

	return in
}

// scrubPartNumbers finds part numbers mentioned in the text, in order of
// appearance, and blanks them out so their digits are not read as prices.
func scrubPartNumbers(lowered string, parts []callstate.Part) (mentioned []string, scrubbed string) {
	type hit struct {
		pos        int
		partNumber string
	}
	var hits []hit

	scrubbed = lowered
	for _, p := range parts {
		needle := strings.ToLower(p.PartNumber)
		if needle == "" {
			continue
		}
		if pos := strings.Index(scrubbed, needle); pos >= 0 {
			hits = append(hits, hit{pos: pos, partNumber: p.PartNumber})
			scrubbed = strings.Replace(scrubbed, needle, strings.Repeat(" ", len(needle)), -1)
		}
	}

	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].pos < hits[i].pos {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	for _, h := range hits {
		mentioned = append(mentioned, h.partNumber)
	}
	return mentioned, scrubbed
}

func extractPricesCents(text string) []int64 {
	var out []int64
	for _, match := range priceRe.FindAllStringSubmatch(text, -1) {
		whole, frac := match[1], match[2]
		if whole == "" {
			whole, frac = match[3], match[4]
		}
		dollars, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			continue
		}
		cents := dollars * 100
		if frac != "" {
			f, err := strconv.ParseInt(frac, 10, 64)
			if err == nil {
				if len(frac) == 1 {
					f *= 10
				}
				cents += f
			}
		}
		out = append(out, cents)
	}
	return out
}

func extractBareNumbersCents(text string) []int64 {
	var out []int64
	for _, match := range bareNumberRe.FindAllStringSubmatch(text, -1) {
		dollars, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		cents := dollars * 100
		if match[2] != "" {
			f, err := strconv.ParseInt(match[2], 10, 64)
			if err == nil {
				if len(match[2]) == 1 {
					f *= 10
				}
				cents += f
			}
		}
		out = append(out, cents)
	}
	return out
}

// attributeLines zips mentioned part numbers with prices in order. Prices
// beyond the mentioned parts are emitted unnamed.
func attributeLines(mentioned []string, prices []int64) []negotiation.QuotedLine {
	lines := make([]negotiation.QuotedLine, 0, len(prices))
	for i := range prices {
		line := negotiation.QuotedLine{PriceCents: &prices[i]}
		if i < len(mentioned) {
			line.PartNumber = mentioned[i]
		}
		lines = append(lines, line)
	}
	return lines
}

func isAcknowledgment(lowered string) bool {
	trimmed := strings.Trim(lowered, " .,!?")
	for _, phrase := range ackPhrases {
		if trimmed == phrase || strings.HasPrefix(trimmed, phrase+" ") || strings.HasPrefix(trimmed, phrase+",") {
			return true
		}
	}
	return containsAny(lowered, []string{"sounds good", "that works", "that's right", "that is right", "go ahead"})
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
