package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voxrelay/voxrelay/internal/asr"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/event"
	"github.com/voxrelay/voxrelay/internal/history"
	"github.com/voxrelay/voxrelay/internal/llm"
	"github.com/voxrelay/voxrelay/internal/persona"
	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/internal/tts"
)

// fakePipeline lets each stage be scripted per test.
type fakePipeline struct {
	transcripts []asr.Transcript
	asrErr      error
	reply       []string
	llmErr      error
	chunks      int
	ttsErr      error
}

func (f *fakePipeline) StreamASR(ctx context.Context, audio []byte) (<-chan asr.Transcript, <-chan error) {
	out := make(chan asr.Transcript, len(f.transcripts))
	errs := make(chan error, 1)
	for _, tr := range f.transcripts {
		out <- tr
	}
	close(out)
	errs <- f.asrErr
	close(errs)
	return out, errs
}

func (f *fakePipeline) StreamLLM(ctx context.Context, messages []llm.Message, consumer func(llm.Chunk) error) error {
	if f.llmErr != nil {
		return f.llmErr
	}
	for _, tok := range f.reply {
		if err := consumer(llm.Chunk{Content: tok}); err != nil {
			return err
		}
	}
	return consumer(llm.Chunk{Done: true})
}

func (f *fakePipeline) StreamTTS(ctx context.Context, text, voice string) (<-chan tts.Chunk, <-chan error) {
	out := make(chan tts.Chunk, f.chunks+1)
	errs := make(chan error, 1)
	for i := 0; i < f.chunks; i++ {
		out <- tts.Chunk{Audio: []byte{byte(i)}, MIME: "audio/mp3", Final: i == f.chunks-1}
	}
	close(out)
	errs <- f.ttsErr
	close(errs)
	return out, errs
}

func newOrchestrator(p Pipeline) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default().TTS
	return New(p, nil, nil, cfg, logger)
}

func newSession(id string) *session.Session {
	return &session.Session{
		ID:      id,
		Persona: persona.Persona{ID: "socrates", DefaultVoice: "echo", SystemPrompt: "You are Socrates."},
		History: history.New("You are Socrates.", 20),
	}
}

func collect(t *testing.T, ch <-chan event.Event) []event.Event {
	t.Helper()
	var events []event.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("event stream did not close")
		}
	}
}

func kinds(events []event.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = string(ev.Type)
	}
	return out
}

func TestTextTurnWithAudioOrdering(t *testing.T) {
	p := &fakePipeline{reply: []string{"Courage ", "is ", "knowledge."}, chunks: 3}
	o := newOrchestrator(p)
	sess := newSession("s1")

	events := collect(t, o.RunTurn(context.Background(), sess, Turn{Text: "What is courage?", WantAudio: true}))
	require.Equal(t, []string{
		"llm-token", "llm-token", "llm-token",
		"tts-chunk", "tts-chunk", "tts-chunk",
	}, kinds(events))

	// Chunk sequence is gapless from zero and exactly the last chunk
	// carries is_end.
	seq := 0
	for _, ev := range events[3:] {
		require.Equal(t, seq, ev.Seq)
		require.Equal(t, seq == 2, ev.IsEnd)
		require.True(t, strings.HasPrefix(ev.Audio, "data:audio/mp3;base64,"))
		seq++
	}

	// Both turn halves are committed to history.
	msgs := sess.History.Snapshot()
	require.Equal(t, 3, len(msgs))
	require.Equal(t, history.RoleUser, msgs[1].Role)
	require.Equal(t, "What is courage?", msgs[1].Content)
	require.Equal(t, history.RoleAssistant, msgs[2].Role)
	require.Equal(t, "Courage is knowledge.", msgs[2].Content)
}

func TestWantAudioFalseSkipsSynthesis(t *testing.T) {
	p := &fakePipeline{reply: []string{"yes"}, chunks: 5}
	o := newOrchestrator(p)

	events := collect(t, o.RunTurn(context.Background(), newSession("s1"), Turn{Text: "hi"}))
	for _, ev := range events {
		require.NotEqual(t, event.TTSChunk, ev.Type)
	}
	require.Equal(t, []string{"llm-token"}, kinds(events))
}

func TestAudioTurnEmitsTranscriptEvents(t *testing.T) {
	p := &fakePipeline{
		transcripts: []asr.Transcript{
			{Text: "recognizing...", Partial: true},
			{Text: "hello there"},
		},
		reply: []string{"General ", "Kenobi."},
	}
	o := newOrchestrator(p)
	sess := newSession("s1")

	events := collect(t, o.RunTurn(context.Background(), sess, Turn{Audio: []byte("pcm")}))
	require.Equal(t, []string{"stt-status", "stt-interim", "stt-final", "llm-token", "llm-token"}, kinds(events))
	require.Equal(t, "hello there", events[2].Text)

	// The transcript, not the raw audio, is what history records.
	require.Equal(t, "hello there", sess.History.Snapshot()[1].Content)
}

func TestASRFailureStopsPipeline(t *testing.T) {
	p := &fakePipeline{asrErr: errors.New("upstream 500"), reply: []string{"never"}}
	o := newOrchestrator(p)
	sess := newSession("s1")

	events := collect(t, o.RunTurn(context.Background(), sess, Turn{Audio: []byte("pcm")}))
	require.Equal(t, []string{"stt-status", "stt-error"}, kinds(events))

	// Nothing was committed: the failed turn leaves history untouched.
	require.Equal(t, 1, sess.History.Len())
}

func TestLLMFailureKeepsUserMessage(t *testing.T) {
	p := &fakePipeline{llmErr: errors.New("model overloaded")}
	o := newOrchestrator(p)
	sess := newSession("s1")

	events := collect(t, o.RunTurn(context.Background(), sess, Turn{Text: "hi", WantAudio: true}))
	require.Equal(t, []string{"llm-error"}, kinds(events))

	// The user message stays as the last entry so a retried turn sees it.
	require.Equal(t, history.RoleUser, sess.History.Last().Role)
}

func TestTTSFailureAfterTokens(t *testing.T) {
	p := &fakePipeline{reply: []string{"answer"}, ttsErr: errors.New("voice service down")}
	o := newOrchestrator(p)
	sess := newSession("s1")

	events := collect(t, o.RunTurn(context.Background(), sess, Turn{Text: "hi", WantAudio: true}))
	require.Equal(t, []string{"llm-token", "tts-error"}, kinds(events))

	// The text answer survives in history even though audio failed.
	require.Equal(t, history.RoleAssistant, sess.History.Last().Role)
}

func TestLongReplyTruncationWarning(t *testing.T) {
	long := strings.Repeat("x", 5000)
	p := &fakePipeline{reply: []string{long}, chunks: 1}
	o := newOrchestrator(p)

	events := collect(t, o.RunTurn(context.Background(), newSession("s1"), Turn{Text: "hi", WantAudio: true}))
	require.Equal(t, []string{"llm-token", "tts-warning", "tts-chunk"}, kinds(events))

	// History keeps the untruncated reply; truncation only affects audio.
	sess := newSession("s2")
	collect(t, o.RunTurn(context.Background(), sess, Turn{Text: "hi", WantAudio: true}))
	require.Equal(t, long, sess.History.Last().Content)
}

func TestTruncateForSpeech(t *testing.T) {
	got, truncated := TruncateForSpeech("short", 4000)
	require.False(t, truncated)
	require.Equal(t, "short", got)

	got, truncated = TruncateForSpeech("abcdefgh", 6)
	require.True(t, truncated)
	require.Equal(t, "abc...", got)

	// A limit below the ellipsis length keeps one rune instead of
	// slicing out of range.
	got, truncated = TruncateForSpeech("abcdefgh", 2)
	require.True(t, truncated)
	require.Equal(t, "a...", got)
}

func TestTinyTruncationLimitStillSynthesizes(t *testing.T) {
	p := &fakePipeline{reply: []string{"hello"}, chunks: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default().TTS
	cfg.MaxTextLen = 2
	o := New(p, nil, nil, cfg, logger)

	events := collect(t, o.RunTurn(context.Background(), newSession("s1"), Turn{Text: "hi", WantAudio: true}))
	require.Equal(t, []string{"llm-token", "tts-warning", "tts-chunk"}, kinds(events))
}

func TestEmptyTurnRejected(t *testing.T) {
	o := newOrchestrator(&fakePipeline{})
	events := collect(t, o.RunTurn(context.Background(), newSession("s1"), Turn{Text: "   "}))
	require.Equal(t, []string{"chat-error"}, kinds(events))
}

func TestCancelledTurnGoesSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &fakePipeline{reply: []string{"a", "b", "c"}, chunks: 2}
	o := newOrchestrator(p)
	sess := newSession("s1")

	events := collect(t, o.RunTurn(ctx, sess, Turn{Text: "hi", WantAudio: true}))
	require.Empty(t, events)

	// A turn that emitted nothing must not leave a history entry.
	require.Equal(t, 1, sess.History.Len())
}

type panicPipeline struct{ fakePipeline }

func (p *panicPipeline) StreamLLM(ctx context.Context, messages []llm.Message, consumer func(llm.Chunk) error) error {
	panic("adapter bug")
}

func TestPanicBecomesChatError(t *testing.T) {
	o := newOrchestrator(&panicPipeline{})
	events := collect(t, o.RunTurn(context.Background(), newSession("s1"), Turn{Text: "hi"}))
	require.Equal(t, []string{"chat-error"}, kinds(events))
	require.Contains(t, events[0].Message, "internal pipeline error")
}

// recordingNotifier captures bus notifications.
type recordingNotifier struct {
	replies   []string
	completes []string
}

func (n *recordingNotifier) TranscriptFinal(sessionID, text string) {}

func (n *recordingNotifier) AssistantReply(sessionID, personaID, text string) {
	n.replies = append(n.replies, text)
}

func (n *recordingNotifier) TurnComplete(sessionID, turnID, status string) {
	n.completes = append(n.completes, status)
}

func TestNotifierSeesCommittedTurn(t *testing.T) {
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(&fakePipeline{reply: []string{"done."}}, nil, notifier, config.Default().TTS, logger)

	collect(t, o.RunTurn(context.Background(), newSession("s1"), Turn{Text: "hi"}))
	require.Equal(t, []string{"done."}, notifier.replies)
	require.Equal(t, []string{StatusDone}, notifier.completes)
}
