// Package server exposes the assistant over a websocket gateway and a small
// HTTP API.
package server

import (
	"encoding/json"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// Mime types used on the websocket.
const (
	MimeText  = "text/plain"
	MimeAudio = "audio/pcm"
	MimeJSON  = "application/json"
)

// ClientFrame is one message from the browser: user text, raw audio, or a
// JSON control payload such as an approval decision. Audio bytes travel
// base64-encoded inside the JSON frame.
type ClientFrame struct {
	MimeType string          `json:"mime_type"`
	Data     json.RawMessage `json:"data"`
}

// Text decodes the frame body as plain text.
func (f *ClientFrame) Text() (string, bool) {
	if f.MimeType != MimeText {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return "", false
	}
	return s, true
}

// Audio decodes the frame body as pcm bytes.
func (f *ClientFrame) Audio() ([]byte, bool) {
	if f.MimeType != MimeAudio {
		return nil, false
	}
	var b []byte
	if err := json.Unmarshal(f.Data, &b); err != nil {
		return nil, false
	}
	return b, true
}

// ApprovalDecision is the control payload resolving a pending approval.
type ApprovalDecision struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
}

// Decision decodes the frame body as an approval decision.
func (f *ClientFrame) Decision() (*ApprovalDecision, bool) {
	if f.MimeType != MimeJSON {
		return nil, false
	}
	var d ApprovalDecision
	if err := json.Unmarshal(f.Data, &d); err != nil || d.ApprovalID == "" {
		return nil, false
	}
	return &d, true
}

// ServerFrame is one message to the browser. Content frames carry mime_type
// and data; signal frames carry turn_complete or interrupted instead.
type ServerFrame struct {
	MimeType string `json:"mime_type,omitempty"`
	Data     any    `json:"data,omitempty"`

	TurnComplete bool `json:"turn_complete,omitempty"`
	Interrupted  bool `json:"interrupted,omitempty"`
}

// ApprovalRequestPayload is the data body of an approval_request frame.
type ApprovalRequestPayload struct {
	Type       string `json:"type"`
	ApprovalID string `json:"approval_id"`
	Summary    string `json:"summary"`
	ExpiresAt  int64  `json:"expires_at"`
}

// TranscriptPayload is the data body of the final transcript frame that
// closes a turn.
type TranscriptPayload struct {
	Transcript string `json:"transcript"`
}

func textFrame(text string) ServerFrame {
	return ServerFrame{MimeType: MimeText, Data: text}
}

func transcriptFrame(text string) ServerFrame {
	return ServerFrame{MimeType: MimeJSON, Data: TranscriptPayload{Transcript: text}}
}

func audioFrame(pcm []byte) ServerFrame {
	return ServerFrame{MimeType: MimeAudio, Data: pcm}
}

func turnCompleteFrame() ServerFrame {
	return ServerFrame{TurnComplete: true}
}

func interruptedFrame() ServerFrame {
	return ServerFrame{Interrupted: true, TurnComplete: true}
}

func approvalFrame(approvalID, summary string, expiresAt int64) ServerFrame {
	return ServerFrame{MimeType: MimeJSON, Data: ApprovalRequestPayload{
		Type:       "approval_request",
		ApprovalID: approvalID,
		Summary:    summary,
		ExpiresAt:  expiresAt,
	}}
}

// frameForEvent maps a turn event to its outbound frame. Events with no
// client-facing representation report false.
func frameForEvent(ev core.Event) (ServerFrame, bool) {
	switch ev.Type {
	case core.EventTextChunk:
		return textFrame(ev.Text), true
	case core.EventTranscript:
		return transcriptFrame(ev.Text), true
	case core.EventAudio:
		return audioFrame(ev.Audio), true
	case core.EventApprovalRequest:
		return approvalFrame(ev.ApprovalID, ev.Summary, ev.ExpiresAt), true
	case core.EventTurnComplete:
		return turnCompleteFrame(), true
	case core.EventInterrupted:
		return interruptedFrame(), true
	default:
		return ServerFrame{}, false
	}
}
