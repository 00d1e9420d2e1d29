package callwebhook

// Provider message types the turn handler distinguishes.
const (
	TypeTranscript      = "transcript"
	TypeStatusUpdate    = "status-update"
	TypeEndOfCallReport = "end-of-call-report"
)

// Provider call statuses that end the conversation.
const (
	ProviderStatusEnded  = "ended"
	ProviderStatusFailed = "failed"
)

// TurnRequest is the provider's per-turn callback envelope.
type TurnRequest struct {
	Message Message `json:"message"`
}

// Message carries one provider callback: a supplier utterance, a status
// change, or the end-of-call report.
type Message struct {
	Type           string `json:"type"`
	Call           Call   `json:"call"`
	Transcript     string `json:"transcript"`
	TranscriptType string `json:"transcriptType"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	EndedReason    string `json:"endedReason"`
	RecordingURL   string `json:"recordingUrl"`
}

// SupplierTurn reports whether the message is a finished supplier utterance
// the machine should react to. The provider also streams the assistant's own
// lines and partial transcripts; those never advance the conversation.
func (m *Message) SupplierTurn() bool {
	if m.Type != TypeTranscript {
		return false
	}
	if m.Role == "assistant" {
		return false
	}
	return m.TranscriptType != "partial"
}

// Call identifies the provider call and echoes back the metadata attached at
// submission time.
type Call struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// StateID returns the correlation key for the call state store. The metadata
// set at submission wins; the provider's own call id is only a fallback for
// assistants configured outside this system.
func (r *TurnRequest) StateID() string {
	if id := r.Message.Call.Metadata["callStateId"]; id != "" {
		return id
	}
	return r.Message.Call.ID
}

// CallRecordID returns the durable record id echoed through metadata, or ""
// if the callback carries none.
func (r *TurnRequest) CallRecordID() string {
	return r.Message.Call.Metadata["callLogId"]
}

// TurnResponse is the next line of dialogue. EndCall tells the provider to
// hang up after speaking it.
type TurnResponse struct {
	Reply   string `json:"reply,omitempty"`
	EndCall bool   `json:"endCall"`
}
