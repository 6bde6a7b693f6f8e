// Package chat drives one user turn through the ASR, LLM and TTS
// capabilities, emitting a single ordered event stream and committing
// conversation history as stages complete.
package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxrelay/voxrelay/internal/asr"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/event"
	"github.com/voxrelay/voxrelay/internal/history"
	"github.com/voxrelay/voxrelay/internal/llm"
	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/internal/tts"
)

// Pipeline is the capability surface the orchestrator drives. The
// concrete implementation is the capability router; tests substitute
// fakes.
type Pipeline interface {
	StreamASR(ctx context.Context, audio []byte) (<-chan asr.Transcript, <-chan error)
	StreamLLM(ctx context.Context, messages []llm.Message, consumer func(llm.Chunk) error) error
	StreamTTS(ctx context.Context, text, voice string) (<-chan tts.Chunk, <-chan error)
}

// Recorder persists committed conversation turns. Failures are logged,
// never surfaced to the caller.
type Recorder interface {
	AppendTurn(ctx context.Context, sessionID, role, content string) error
}

// Notifier broadcasts turn milestones to external observers.
type Notifier interface {
	TranscriptFinal(sessionID, text string)
	AssistantReply(sessionID, personaID, text string)
	TurnComplete(sessionID, turnID, status string)
}

// Turn is one decoded user input. WantAudio is the caller's decision;
// the orchestrator never second-guesses it.
type Turn struct {
	ID        string
	Text      string
	Audio     []byte
	WantAudio bool
}

// Turn outcomes, used for metrics and bus notifications.
const (
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type Orchestrator struct {
	pipeline Pipeline
	recorder Recorder
	notifier Notifier
	cfg      config.TTSConfig
	logger   *slog.Logger

	turnCounter  metric.Int64Counter
	tokenCounter metric.Int64Counter
	chunkCounter metric.Int64Counter
}

// New builds the orchestrator. recorder and notifier may be nil.
func New(pipeline Pipeline, recorder Recorder, notifier Notifier, ttsCfg config.TTSConfig, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		pipeline: pipeline,
		recorder: recorder,
		notifier: notifier,
		cfg:      ttsCfg,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
	meter := otel.Meter("github.com/voxrelay/voxrelay/chat")
	var err error
	if o.turnCounter, err = meter.Int64Counter("vox.turns.total", metric.WithDescription("Completed turns by status")); err != nil {
		o.logger.Warn("failed to init turn counter", slogError(err))
	}
	if o.tokenCounter, err = meter.Int64Counter("vox.llm.tokens.total", metric.WithDescription("Streamed LLM token events")); err != nil {
		o.logger.Warn("failed to init token counter", slogError(err))
	}
	if o.chunkCounter, err = meter.Int64Counter("vox.tts.chunks.total", metric.WithDescription("Streamed TTS chunk events")); err != nil {
		o.logger.Warn("failed to init chunk counter", slogError(err))
	}
	return o
}

// RunTurn executes the pipeline for one admitted turn and returns its
// ordered event stream. The channel is closed when the turn reaches a
// terminal state; after cancellation no further events are emitted.
// The caller owns the permit and must release it when the stream ends.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *session.Session, turn Turn) <-chan event.Event {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	out := make(chan event.Event, 16)
	go func() {
		defer close(out)

		status := StatusFailed
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("turn pipeline panicked",
					slog.String("session_id", sess.ID),
					slog.String("turn_id", turn.ID),
					slog.Any("panic", r))
				o.send(ctx, out, event.Error("internal pipeline error"))
			}
			o.finish(sess, turn, status)
		}()

		status = o.run(ctx, sess, turn, out)
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, turn Turn, out chan<- event.Event) string {
	input := turn.Text

	if len(turn.Audio) > 0 {
		text, status := o.transcribe(ctx, sess, turn, out)
		if status != "" {
			return status
		}
		input = text
	}

	if strings.TrimSpace(input) == "" {
		o.send(ctx, out, event.Error("turn carries no text or audio input"))
		return StatusFailed
	}

	answer, status := o.generate(ctx, sess, turn, input, out)
	if status != "" {
		return status
	}

	if turn.WantAudio {
		if status := o.synthesize(ctx, sess, turn, answer, out); status != "" {
			return status
		}
	}
	return StatusDone
}

// transcribe runs the ASR stage. It returns the final transcript, or a
// non-empty terminal status when the turn must stop.
func (o *Orchestrator) transcribe(ctx context.Context, sess *session.Session, turn Turn, out chan<- event.Event) (string, string) {
	if !o.send(ctx, out, event.Status("transcribing audio")) {
		return "", StatusCancelled
	}

	transcripts, errs := o.pipeline.StreamASR(ctx, turn.Audio)
	var final string
	var sawFinal bool
	for tr := range transcripts {
		if tr.Partial {
			if !o.send(ctx, out, event.Interim(tr.Text)) {
				return "", StatusCancelled
			}
			continue
		}
		final = tr.Text
		sawFinal = true
		if !o.send(ctx, out, event.Final(tr.Text)) {
			return "", StatusCancelled
		}
	}
	if err := <-errs; err != nil {
		if ctx.Err() != nil {
			return "", StatusCancelled
		}
		o.logger.Warn("transcription failed", slog.String("session_id", sess.ID), slogError(err))
		o.send(ctx, out, event.TranscribeErr(fmt.Sprintf("speech recognition failed: %v", err)))
		return "", StatusFailed
	}
	if !sawFinal || strings.TrimSpace(final) == "" {
		o.send(ctx, out, event.TranscribeErr("speech recognition produced no transcript"))
		return "", StatusFailed
	}
	return final, ""
}

// generate runs the LLM stage over the bounded history. The user
// message is committed before the call; the assistant message only
// after the stream completes, so a failed answer is never recorded.
func (o *Orchestrator) generate(ctx context.Context, sess *session.Session, turn Turn, input string, out chan<- event.Event) (string, string) {
	// A cancelled turn emitted nothing; it must not leave a history
	// entry either.
	if ctx.Err() != nil {
		return "", StatusCancelled
	}
	sess.History.Append(history.RoleUser, input)

	messages := toLLMMessages(sess.History.Snapshot())
	var answer strings.Builder
	err := o.pipeline.StreamLLM(ctx, messages, func(c llm.Chunk) error {
		if c.Content == "" {
			return nil
		}
		if !o.send(ctx, out, event.Token(c.Content)) {
			return context.Canceled
		}
		answer.WriteString(c.Content)
		o.count(o.tokenCounter, 1)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", StatusCancelled
		}
		o.logger.Warn("generation failed", slog.String("session_id", sess.ID), slogError(err))
		o.send(ctx, out, event.GenerateErr(fmt.Sprintf("language model call failed: %v", err)))
		return "", StatusFailed
	}

	full := answer.String()
	sess.History.Append(history.RoleAssistant, full)
	o.record(sess.ID, history.RoleUser, input)
	o.record(sess.ID, history.RoleAssistant, full)
	if o.notifier != nil {
		if len(turn.Audio) > 0 {
			o.notifier.TranscriptFinal(sess.ID, input)
		}
		o.notifier.AssistantReply(sess.ID, sess.Persona.ID, full)
	}
	return full, ""
}

// synthesize runs the TTS stage. Text already delivered as tokens
// remains valid whatever happens here.
func (o *Orchestrator) synthesize(ctx context.Context, sess *session.Session, turn Turn, text string, out chan<- event.Event) string {
	if trimmed, truncated := TruncateForSpeech(text, o.cfg.MaxTextLen); truncated {
		if !o.send(ctx, out, event.Warning("reply too long for synthesis, truncated")) {
			return StatusCancelled
		}
		text = trimmed
	}

	chunks, errs := o.pipeline.StreamTTS(ctx, text, sess.Persona.DefaultVoice)
	seq := 0
	for c := range chunks {
		audio := "data:" + c.MIME + ";base64," + base64.StdEncoding.EncodeToString(c.Audio)
		if !o.send(ctx, out, event.Chunk(audio, seq, c.Final)) {
			return StatusCancelled
		}
		seq++
		o.count(o.chunkCounter, 1)
	}
	if err := <-errs; err != nil {
		if ctx.Err() != nil {
			return StatusCancelled
		}
		o.logger.Warn("synthesis failed", slog.String("session_id", sess.ID), slogError(err))
		o.send(ctx, out, event.SynthErr(fmt.Sprintf("speech synthesis failed: %v", err)))
		return StatusFailed
	}
	return ""
}

// send delivers an event unless the turn was cancelled. After
// cancellation nothing further reaches the caller.
func (o *Orchestrator) send(ctx context.Context, out chan<- event.Event, ev event.Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

func (o *Orchestrator) finish(sess *session.Session, turn Turn, status string) {
	o.count(o.turnCounter, 1, attribute.String("status", status))
	if o.notifier != nil {
		o.notifier.TurnComplete(sess.ID, turn.ID, status)
	}
	o.logger.Info("turn finished",
		slog.String("session_id", sess.ID),
		slog.String("turn_id", turn.ID),
		slog.String("status", status))
}

// record persists a committed turn entry; storage trouble never fails
// the turn.
func (o *Orchestrator) record(sessionID, role, content string) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.AppendTurn(context.Background(), sessionID, role, content); err != nil {
		o.logger.Warn("failed to record turn", slog.String("session_id", sessionID), slogError(err))
	}
}

func (o *Orchestrator) count(counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(context.Background(), n, metric.WithAttributes(attrs...))
}

// TruncateForSpeech shortens text to max runes, replacing the tail
// with an ellipsis, and reports whether it truncated. The keep bound
// is clamped so a tiny limit still yields at least one rune instead of
// slicing out of range.
func TruncateForSpeech(text string, max int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= max {
		return text, false
	}
	keep := max - 3
	if keep < 1 {
		keep = 1
	}
	return string(runes[:keep]) + "...", true
}

func toLLMMessages(msgs []history.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
