package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct {
	// pace between emitted tokens; zero disables pacing (tests).
	pace time.Duration
}

// NewMockGenerator returns an offline generator that streams a
// deterministic reply word by word, echoing the last user message.
func NewMockGenerator() Generator { return &mockGenerator{pace: 10 * time.Millisecond} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}
	reply := "[mock reply to: " + strings.TrimSpace(lastUser) + "]"
	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if m.pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.pace):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := consumer(Chunk{Content: w}); err != nil {
			return err
		}
	}
	return consumer(Chunk{Done: true})
}
