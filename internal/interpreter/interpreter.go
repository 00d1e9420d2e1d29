// Package interpreter turns raw supplier utterances into classified
// negotiation inputs. Two implementations: a regex rule set that needs no
// network, and a Gemini-backed one that falls back to the rules.
package interpreter

import (
	"context"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/negotiation"
)

// Interpreter classifies one supplier utterance given the parts under
// discussion and the current conversation node.
type Interpreter interface {
	Interpret(ctx context.Context, parts []callstate.Part, node callstate.Node, utterance string) negotiation.Input
}
