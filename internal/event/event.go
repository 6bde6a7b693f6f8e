package event

import "encoding/json"

// Type tags a pipeline event on the wire.
type Type string

const (
	STTStatus  Type = "stt-status"
	STTInterim Type = "stt-interim"
	STTFinal   Type = "stt-final"
	STTError   Type = "stt-error"
	LLMToken   Type = "llm-token"
	LLMError   Type = "llm-error"
	TTSChunk   Type = "tts-chunk"
	TTSWarning Type = "tts-warning"
	TTSError   Type = "tts-error"
	ChatError  Type = "chat-error"
)

// Event is one entry in a turn's ordered stream. Only the fields
// relevant to its Type are populated; MarshalJSON emits the wire
// shape the transport expects for each kind.
type Event struct {
	Type    Type
	Message string
	Text    string
	Token   string
	Audio   string
	Seq     int
	IsEnd   bool
}

// IsTerminalError reports whether the event ends its turn.
func (e Event) IsTerminalError() bool {
	switch e.Type {
	case STTError, LLMError, TTSError, ChatError:
		return true
	}
	return false
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case STTInterim, STTFinal:
		return json.Marshal(struct {
			Type Type   `json:"type"`
			Text string `json:"text"`
		}{e.Type, e.Text})
	case LLMToken:
		return json.Marshal(struct {
			Type  Type   `json:"type"`
			Token string `json:"token"`
		}{e.Type, e.Token})
	case TTSChunk:
		return json.Marshal(struct {
			Type  Type   `json:"type"`
			Audio string `json:"audio"`
			Seq   int    `json:"seq"`
			IsEnd bool   `json:"is_end"`
		}{e.Type, e.Audio, e.Seq, e.IsEnd})
	default:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			Message string `json:"message"`
		}{e.Type, e.Message})
	}
}

func Status(msg string) Event { return Event{Type: STTStatus, Message: msg} }

func Interim(text string) Event { return Event{Type: STTInterim, Text: text} }

func Final(text string) Event { return Event{Type: STTFinal, Text: text} }

func TranscribeErr(msg string) Event { return Event{Type: STTError, Message: msg} }

func Token(tok string) Event { return Event{Type: LLMToken, Token: tok} }

func GenerateErr(msg string) Event { return Event{Type: LLMError, Message: msg} }

func Warning(msg string) Event { return Event{Type: TTSWarning, Message: msg} }

func SynthErr(msg string) Event { return Event{Type: TTSError, Message: msg} }

func Error(msg string) Event { return Event{Type: ChatError, Message: msg} }

// Chunk builds a tts-chunk event from already-encoded audio.
func Chunk(audio string, seq int, isEnd bool) Event {
	return Event{Type: TTSChunk, Audio: audio, Seq: seq, IsEnd: isEnd}
}
