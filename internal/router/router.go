// Package router selects one provider adapter per capability at startup
// and hides provider identity behind a uniform streaming contract.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxrelay/voxrelay/internal/asr"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/llm"
	"github.com/voxrelay/voxrelay/internal/tts"
)

// Router owns the active adapter for each capability. There is no
// runtime fallback: a failing adapter surfaces its failure to the
// caller rather than silently retrying another provider.
type Router struct {
	cfg        config.Config
	recognizer asr.Recognizer
	generator  llm.Generator
	synth      tts.Synthesizer
	logger     *slog.Logger
}

// New wires the adapters named by configuration. Adapters missing
// credentials still construct; they degrade at call time.
func New(cfg config.Config, logger *slog.Logger) (*Router, error) {
	r := &Router{cfg: cfg, logger: logger.With(slog.String("component", "router"))}

	switch cfg.ASR.Mode {
	case "mock":
		r.recognizer = asr.NewMockRecognizer()
	case "baidu":
		r.recognizer = asr.NewBaiduRecognizer(cfg.ASR)
	case "exec":
		rec, err := asr.NewExecRecognizer(cfg.ASR.Command)
		if err != nil {
			return nil, fmt.Errorf("asr adapter: %w", err)
		}
		r.recognizer = rec
	default:
		return nil, fmt.Errorf("unknown asr mode %q", cfg.ASR.Mode)
	}

	switch cfg.LLM.Mode {
	case "mock":
		r.generator = llm.NewMockGenerator()
	case "ollama":
		r.generator = llm.NewOllamaGenerator(cfg.LLM.Endpoint, cfg.LLM.Model)
	case "openai":
		r.generator = llm.NewOpenAIGenerator(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.LLM.Mode)
	}

	pace := time.Duration(cfg.TTS.ChunkPaceMS) * time.Millisecond
	switch cfg.TTS.Mode {
	case "mock":
		r.synth = tts.NewMockSynth(cfg.TTS.ChunkSize, pace)
	case "openai":
		r.synth = tts.NewOpenAISynth(cfg.TTS.Endpoint, cfg.TTS.APIKey, cfg.TTS.Model, cfg.TTS.ChunkSize, pace)
	case "exec":
		synth, err := tts.NewExecSynth(cfg.TTS.Command)
		if err != nil {
			return nil, fmt.Errorf("tts adapter: %w", err)
		}
		r.synth = synth
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.TTS.Mode)
	}

	r.logger.Info("capability adapters selected",
		slog.String("asr", cfg.ASR.Mode),
		slog.String("llm", cfg.LLM.Mode),
		slog.String("tts", cfg.TTS.Mode))
	return r, nil
}

// StreamASR transcribes one turn's accumulated audio.
func (r *Router) StreamASR(ctx context.Context, audio []byte) (<-chan asr.Transcript, <-chan error) {
	return r.recognizer.Stream(ctx, audio)
}

// StreamLLM generates a completion over the given messages, invoking
// consumer per streamed chunk.
func (r *Router) StreamLLM(ctx context.Context, messages []llm.Message, consumer func(llm.Chunk) error) error {
	return r.generator.Generate(ctx, llm.Request{
		Messages:    messages,
		MaxTokens:   r.cfg.LLM.MaxTokens,
		Temperature: r.cfg.LLM.Temperature,
	}, consumer)
}

// StreamTTS synthesizes speech for text with the given voice.
func (r *Router) StreamTTS(ctx context.Context, text, voice string) (<-chan tts.Chunk, <-chan error) {
	return r.synth.Synthesize(ctx, tts.Request{Text: text, Voice: voice})
}

// TranscribeOnce drains the ASR stream and returns the final transcript.
func (r *Router) TranscribeOnce(ctx context.Context, audio []byte) (string, error) {
	transcripts, errs := r.StreamASR(ctx, audio)
	var final string
	var sawFinal bool
	for tr := range transcripts {
		if !tr.Partial {
			final = tr.Text
			sawFinal = true
		}
	}
	if err := <-errs; err != nil {
		return "", err
	}
	if !sawFinal {
		return "", errors.New("recognizer produced no final transcript")
	}
	return final, nil
}

// CompleteOnce runs a full completion and returns the whole answer.
func (r *Router) CompleteOnce(ctx context.Context, messages []llm.Message) (string, error) {
	var sb strings.Builder
	err := r.StreamLLM(ctx, messages, func(c llm.Chunk) error {
		sb.WriteString(c.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// SynthesizeOnce reassembles the full audio for text and reports its
// MIME type.
func (r *Router) SynthesizeOnce(ctx context.Context, text, voice string) ([]byte, string, error) {
	chunks, errs := r.StreamTTS(ctx, text, voice)
	var audio []byte
	mime := "audio/mp3"
	for c := range chunks {
		audio = append(audio, c.Audio...)
		if c.MIME != "" {
			mime = c.MIME
		}
	}
	if err := <-errs; err != nil {
		return nil, "", err
	}
	return audio, mime, nil
}
