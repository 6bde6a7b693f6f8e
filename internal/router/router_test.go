package router

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/llm"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mockConfig() config.Config {
	cfg := config.Default()
	cfg.TTS.ChunkPaceMS = 0
	return cfg
}

func TestNewRejectsUnknownModes(t *testing.T) {
	cfg := mockConfig()
	cfg.ASR.Mode = "telepathy"
	_, err := New(cfg, newLogger())
	require.Error(t, err)
}

func TestTranscribeOnce(t *testing.T) {
	r, err := New(mockConfig(), newLogger())
	require.NoError(t, err)

	text, err := r.TranscribeOnce(context.Background(), []byte("audio-bytes"))
	require.NoError(t, err)
	require.Contains(t, text, "mock transcript")
	// Partial interim results are not the final answer.
	require.NotContains(t, text, "recognizing")
}

func TestCompleteOnce(t *testing.T) {
	r, err := New(mockConfig(), newLogger())
	require.NoError(t, err)

	answer, err := r.CompleteOnce(context.Background(), []llm.Message{
		{Role: "system", Content: "You are Socrates."},
		{Role: "user", Content: "What is courage?"},
	})
	require.NoError(t, err)
	require.Equal(t, "[mock reply to: What is courage?]", answer)
}

func TestSynthesizeOnceReassembles(t *testing.T) {
	r, err := New(mockConfig(), newLogger())
	require.NoError(t, err)

	text := strings.Repeat("a longer sentence to synthesize. ", 40)
	audio, mime, err := r.SynthesizeOnce(context.Background(), text, "echo")
	require.NoError(t, err)
	require.Equal(t, "audio/mp3", mime)
	require.NotEmpty(t, audio)

	// One-shot output matches the streamed chunks reassembled.
	chunks, errs := r.StreamTTS(context.Background(), text, "echo")
	var streamed []byte
	for c := range chunks {
		streamed = append(streamed, c.Audio...)
	}
	require.NoError(t, <-errs)
	require.Equal(t, streamed, audio)
}
