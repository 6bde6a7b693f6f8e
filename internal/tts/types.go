package tts

import "context"

// Request contains parameters to synthesize speech.
type Request struct {
	Text  string
	Voice string
}

// Chunk carries one piece of encoded audio. The adapter marks the last
// chunk Final; sequence numbers are assigned by the consumer.
type Chunk struct {
	Audio []byte
	MIME  string
	Final bool
}

// Synthesizer is the contract for producing audio. The chunk channel is
// closed when synthesis ends; at most one error is delivered on the
// error channel.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}
