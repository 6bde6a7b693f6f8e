package asr

import "context"

// Transcript is a streaming recognition result.
type Transcript struct {
	Text       string
	Partial    bool
	Confidence float64
}

// Recognizer abstracts speech-to-text backends. Stream consumes one
// turn's fully accumulated audio and yields transcripts in order; the
// transcript channel is closed when recognition ends, and at most one
// error is delivered on the error channel.
type Recognizer interface {
	Stream(ctx context.Context, audio []byte) (<-chan Transcript, <-chan error)
}
