package asr

import (
	"context"
	"fmt"
	"time"
)

type mockRecognizer struct{}

// NewMockRecognizer returns an offline recognizer that produces a
// deterministic transcript without any external call.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Stream(ctx context.Context, audio []byte) (<-chan Transcript, <-chan error) {
	transcripts := make(chan Transcript, 2)
	errs := make(chan error, 1)
	go func() {
		defer close(transcripts)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(20 * time.Millisecond):
		}
		transcripts <- Transcript{Text: "recognizing...", Partial: true}
		transcripts <- Transcript{
			Text:       fmt.Sprintf("[mock transcript of %d audio bytes]", len(audio)),
			Confidence: 1,
		}
	}()
	return transcripts, errs
}
