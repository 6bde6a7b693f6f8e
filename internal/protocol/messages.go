// Package protocol defines the bus subjects and payloads voxrelay
// publishes for external observers.
package protocol

import "time"

// TranscriptFinal is the committed transcript of one audio turn.
type TranscriptFinal struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// AssistantReply is the full assistant answer for one turn.
type AssistantReply struct {
	SessionID string    `json:"session_id"`
	PersonaID string    `json:"persona_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnComplete marks a turn reaching a terminal state.
type TurnComplete struct {
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptFinal = "chat.stt.final"
	SubjectAssistantReply  = "chat.llm.reply"
	SubjectTurnComplete    = "chat.turn.complete"
)
