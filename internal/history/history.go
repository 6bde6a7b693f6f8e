package history

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is a bounded conversation log. The first entry is always the
// session's system prompt; overflow evicts the oldest non-system entries
// so the prompt can never be trimmed away, however small the limit.
//
// History is not internally synchronized: the session admission rule
// guarantees a single writer per session at any time.
type History struct {
	max      int
	messages []Message
}

// New seeds a history with the system prompt.
func New(systemPrompt string, max int) *History {
	if max < 2 {
		max = 2
	}
	h := &History{max: max}
	h.messages = append(h.messages, Message{Role: RoleSystem, Content: systemPrompt})
	return h
}

// Append adds a message and trims overflow.
func (h *History) Append(role, content string) {
	h.messages = append(h.messages, Message{Role: role, Content: content})
	if len(h.messages) <= h.max {
		return
	}
	excess := len(h.messages) - h.max
	// Index 0 is the system prompt; drop from index 1.
	trimmed := make([]Message, 0, h.max)
	trimmed = append(trimmed, h.messages[0])
	trimmed = append(trimmed, h.messages[1+excess:]...)
	h.messages = trimmed
}

// Snapshot returns a copy of the current messages.
func (h *History) Snapshot() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len reports the number of stored messages.
func (h *History) Len() int { return len(h.messages) }

// Last returns the most recent message.
func (h *History) Last() Message {
	return h.messages[len(h.messages)-1]
}
