package tts

import (
	"context"
	"time"
)

type mockSynth struct {
	chunkSize int
	pace      time.Duration
}

// NewMockSynth returns an offline synthesizer producing deterministic
// pseudo-audio derived from the input text, split into fixed-size chunks.
func NewMockSynth(chunkSize int, pace time.Duration) Synthesizer {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	return &mockSynth{chunkSize: chunkSize, pace: pace}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		audio := synthesizeBytes(req.Text, req.Voice)
		if err := emitChunks(ctx, chunks, audio, "audio/mp3", m.chunkSize, m.pace); err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}

// synthesizeBytes derives stable bytes from text and voice so tests and
// offline demos see reproducible audio payloads.
func synthesizeBytes(text, voice string) []byte {
	seed := text + "|" + voice
	out := make([]byte, len(text)*4+16)
	var acc byte
	for i := range out {
		acc += seed[i%len(seed)] + byte(i)
		out[i] = acc
	}
	return out
}

// emitChunks slices audio into fixed-size pieces and sends them in
// order, marking the last one Final. Pacing smooths playback for
// streaming consumers; cancellation aborts between chunks.
func emitChunks(ctx context.Context, chunks chan<- Chunk, audio []byte, mime string, size int, pace time.Duration) error {
	total := (len(audio) + size - 1) / size
	if total == 0 {
		total = 1
	}
	for i := 0; i < total; i++ {
		start := i * size
		end := start + size
		if end > len(audio) {
			end = len(audio)
		}
		chunk := Chunk{Audio: audio[start:end], MIME: mime, Final: i == total-1}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunks <- chunk:
		}
		if pace > 0 && i < total-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pace):
			}
		}
	}
	return nil
}
