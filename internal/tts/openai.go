package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openaiSynth calls an OpenAI-compatible /v1/audio/speech endpoint,
// downloads the whole MP3 and replays it as fixed-size paced chunks.
type openaiSynth struct {
	endpoint  string
	apiKey    string
	model     string
	chunkSize int
	pace      time.Duration
	client    *http.Client
}

func NewOpenAISynth(endpoint, apiKey, model string, chunkSize int, pace time.Duration) Synthesizer {
	return &openaiSynth{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    apiKey,
		model:     model,
		chunkSize: chunkSize,
		pace:      pace,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

type openaiSpeechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

func (s *openaiSynth) Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		audio, err := s.fetch(ctx, req)
		if err != nil {
			errs <- err
			return
		}
		if err := emitChunks(ctx, chunks, audio, "audio/mp3", s.chunkSize, s.pace); err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}

func (s *openaiSynth) fetch(ctx context.Context, req Request) ([]byte, error) {
	if s.apiKey == "" {
		return nil, errors.New("tts api key not configured")
	}
	payload := openaiSpeechRequest{
		Model:          s.model,
		Voice:          req.Voice,
		Input:          req.Text,
		ResponseFormat: "mp3",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts returned status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
