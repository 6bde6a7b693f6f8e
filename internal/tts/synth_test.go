package tts

import (
	"context"
	"testing"
)

func TestMockSynthChunking(t *testing.T) {
	synth := NewMockSynth(16, 0)
	chunks, errs := synth.Synthesize(context.Background(), Request{Text: "hello there, this is a longer line", Voice: "echo"})

	var got []Chunk
	for c := range chunks {
		got = append(got, c)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, c := range got {
		final := i == len(got)-1
		if c.Final != final {
			t.Fatalf("chunk %d final=%v, want %v", i, c.Final, final)
		}
		if !final && len(c.Audio) != 16 {
			t.Fatalf("chunk %d size=%d, want 16", i, len(c.Audio))
		}
	}
}

func TestMockSynthDeterministic(t *testing.T) {
	a := synthesizeBytes("text", "echo")
	b := synthesizeBytes("text", "echo")
	c := synthesizeBytes("text", "onyx")
	if string(a) != string(b) {
		t.Fatal("same input should produce identical audio")
	}
	if string(a) == string(c) {
		t.Fatal("different voice should produce different audio")
	}
}

func TestMockSynthCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	synth := NewMockSynth(4, 0)
	chunks, errs := synth.Synthesize(ctx, Request{Text: "some input text to chunk"})

	<-chunks
	cancel()
	for range chunks {
	}
	// Cancellation either drains cleanly or reports context.Canceled.
	if err := <-errs; err != nil && err != context.Canceled {
		t.Fatalf("unexpected error: %v", err)
	}
}
