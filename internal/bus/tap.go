package bus

import (
	"log/slog"
	"time"

	"github.com/voxrelay/voxrelay/internal/protocol"
)

// Tap publishes turn milestones on chat.* subjects. Every publish is
// best effort: bus trouble is logged and never reaches the turn.
type Tap struct {
	client *Client
	log    *slog.Logger
}

func NewTap(client *Client, log *slog.Logger) *Tap {
	return &Tap{client: client, log: log.With(slog.String("component", "bus-tap"))}
}

func (t *Tap) TranscriptFinal(sessionID, text string) {
	t.publish(protocol.SubjectTranscriptFinal, protocol.TranscriptFinal{
		SessionID: sessionID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (t *Tap) AssistantReply(sessionID, personaID, text string) {
	t.publish(protocol.SubjectAssistantReply, protocol.AssistantReply{
		SessionID: sessionID,
		PersonaID: personaID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (t *Tap) TurnComplete(sessionID, turnID, status string) {
	t.publish(protocol.SubjectTurnComplete, protocol.TurnComplete{
		SessionID: sessionID,
		TurnID:    turnID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

func (t *Tap) publish(subject string, v any) {
	if err := t.client.PublishJSON(subject, v); err != nil {
		t.log.Warn("bus publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
