// Package vapi is a minimal client for the Vapi outbound call API: create a
// call, assembled either from a pre-configured assistant id or an inline
// assistant definition pointing back at our webhook.
package vapi

// Customer is the destination of an outbound call.
type Customer struct {
	Number string `json:"number"`
}

// Server is the webhook the provider invokes per conversation turn.
type Server struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// ModelMessage seeds the assistant's system prompt.
type ModelMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Model configures the assistant's language model.
type Model struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Messages []ModelMessage `json:"messages,omitempty"`
}

// Voice configures text-to-speech.
type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

// Assistant is an inline assistant definition, used when the organization
// has no pre-configured assistant template.
type Assistant struct {
	FirstMessage string `json:"firstMessage,omitempty"`
	Model        *Model `json:"model,omitempty"`
	Voice        *Voice `json:"voice,omitempty"`
	Server       Server `json:"server"`
}

// CreateCallRequest is the call-creation payload. AssistantID and Assistant
// are mutually exclusive; AssistantID wins when both are set.
type CreateCallRequest struct {
	AssistantID   string            `json:"assistantId,omitempty"`
	Assistant     *Assistant        `json:"assistant,omitempty"`
	PhoneNumberID string            `json:"phoneNumberId"`
	Customer      Customer          `json:"customer"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CreateCallResponse carries the provider-assigned call identifier.
type CreateCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}
