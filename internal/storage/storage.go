package storage

import (
	"time"

	"voice-intake/internal/llm"
)

// End reasons recorded with a transcript.
const (
	ReasonDisconnected = "disconnected"
	ReasonCallFailed   = "call_failed"
	ReasonExpired      = "expired"
)

// Transcript is the final record of one call session.
// Transcripts are appended in the order sessions end.
type Transcript struct {
	SessionID        string        `json:"session_id"`
	CallConnectionID string        `json:"call_connection_id,omitempty"`
	PhoneNumber      string        `json:"phone_number"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at"`
	Reason           string        `json:"reason"`
	Turns            []llm.Message `json:"turns"`
}

// UserTurns counts the caller's utterances.
func (t Transcript) UserTurns() int {
	n := 0
	for _, m := range t.Turns {
		if m.Role == llm.RoleUser {
			n++
		}
	}
	return n
}

// Recorder abstracts persistence of ended call transcripts.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendTranscript(t Transcript) error
	LoadTranscripts() ([]Transcript, error)
}
