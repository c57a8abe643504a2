package core

// EventType tags outbound events relayed to the gateway client.
type EventType string

const (
	// EventTextChunk is a partial text fragment of the in-progress turn.
	EventTextChunk EventType = "text_chunk"

	// EventTranscript is the final text of a completed turn.
	EventTranscript EventType = "transcript"

	// EventAudio carries raw audio/pcm bytes for audio-mode sessions.
	EventAudio EventType = "audio"

	// EventTurnComplete signals the agent finished its turn.
	EventTurnComplete EventType = "turn_complete"

	// EventInterrupted signals the turn was cut off by new client input.
	EventInterrupted EventType = "interrupted"

	// EventApprovalRequest asks the client for an out-of-band human decision
	// on a pending sensitive action.
	EventApprovalRequest EventType = "approval_request"
)

// Event is one agent-to-client signal. Which fields are set depends on Type.
type Event struct {
	Type       EventType
	Text       string
	Audio      []byte
	ApprovalID string
	Summary    string
	ExpiresAt  int64
}

// Emitter receives events as a turn progresses. Implementations must be safe
// to call from the session's turn goroutine only.
type Emitter func(Event)
