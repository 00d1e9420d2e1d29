package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/negotiation"
	"partsiq_backend/platform/logger"

	"google.golang.org/genai"
)

const interpretTimeout = 8 * time.Second

// geminiResult is the JSON shape the model is instructed to return.
type geminiResult struct {
	Kind  string `json:"kind"`
	Lines []struct {
		PartNumber   string  `json:"partNumber"`
		PriceDollars float64 `json:"priceDollars"`
		Unavailable  bool    `json:"unavailable"`
		LeadTimeDays *int    `json:"leadTimeDays"`
		Notes        string  `json:"notes"`
	} `json:"lines"`
}

// Gemini classifies utterances with a language model and falls back to the
// rule set on any failure, so a model outage degrades accuracy rather than
// availability.
type Gemini struct {
	client   *genai.Client
	model    string
	fallback Interpreter
	log      *logger.Logger
}

// NewGemini creates the model-backed interpreter.
func NewGemini(ctx context.Context, apiKey, model string, fallback Interpreter, log *logger.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model, fallback: fallback, log: log}, nil
}

// Interpret asks the model to classify the utterance into a structured
// result. Any error on the model path routes through the rule-based
// fallback.
func (g *Gemini) Interpret(ctx context.Context, parts []callstate.Part, node callstate.Node, utterance string) negotiation.Input {
	ctx, cancel := context.WithTimeout(ctx, interpretTimeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(buildPrompt(parts, node, utterance)),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		g.log.Warn("model interpretation failed, using rules", "error", err)
		return g.fallback.Interpret(ctx, parts, node, utterance)
	}

	var result geminiResult
	if err := json.Unmarshal([]byte(resp.Text()), &result); err != nil {
		g.log.Warn("model returned unparseable classification, using rules", "error", err)
		return g.fallback.Interpret(ctx, parts, node, utterance)
	}

	in, ok := toInput(result, utterance)
	if !ok {
		return g.fallback.Interpret(ctx, parts, node, utterance)
	}
	return in
}

func buildPrompt(parts []callstate.Part, node callstate.Node, utterance string) string {
	var b strings.Builder
	b.WriteString("You are classifying one utterance from a parts supplier on a phone call.\n")
	b.WriteString("Parts under discussion:\n")
	for _, p := range parts {
		fmt.Fprintf(&b, "- %s (%s), quantity %d\n", p.PartNumber, p.Description, p.Quantity)
	}
	fmt.Fprintf(&b, "Conversation stage: %s\n", node)
	fmt.Fprintf(&b, "Supplier said: %q\n\n", utterance)
	b.WriteString(`Respond with JSON only:
{
  "kind": "acknowledge" | "quote" | "unclear" | "refusal",
  "lines": [{"partNumber": "", "priceDollars": 0, "unavailable": false, "leadTimeDays": null, "notes": ""}]
}
Rules: "quote" when the utterance states a price or availability for any part;
"acknowledge" for agreement without price content; "refusal" when the supplier
declines to do business at all; otherwise "unclear". Attribute prices to part
numbers when stated; leave partNumber empty when the supplier did not name one.`)
	return b.String()
}

func toInput(result geminiResult, utterance string) (negotiation.Input, bool) {
	in := negotiation.Input{Utterance: utterance}

	switch result.Kind {
	case "acknowledge":
		in.Kind = negotiation.KindAcknowledge
	case "quote":
		in.Kind = negotiation.KindQuote
	case "unclear":
		in.Kind = negotiation.KindUnclear
	case "refusal":
		in.Kind = negotiation.KindRefusal
	default:
		return negotiation.Input{}, false
	}

	for _, line := range result.Lines {
		quoted := negotiation.QuotedLine{
			PartNumber:   line.PartNumber,
			Unavailable:  line.Unavailable,
			LeadTimeDays: line.LeadTimeDays,
			Notes:        line.Notes,
		}
		if line.PriceDollars > 0 {
			cents := int64(line.PriceDollars*100 + 0.5)
			quoted.PriceCents = &cents
		}
		in.Lines = append(in.Lines, quoted)
	}
	return in, true
}
