package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execRecognizer shells out to an external transcription command. The
// command receives the raw audio on stdin and must print a single JSON
// object {"text": ..., "confidence": ...} on stdout.
type execRecognizer struct {
	cmd []string
	mu  sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecRecognizer(command string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse asr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("asr command is empty")
	}
	return &execRecognizer{cmd: args}, nil
}

func (r *execRecognizer) Stream(ctx context.Context, audio []byte) (<-chan Transcript, <-chan error) {
	transcripts := make(chan Transcript, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(transcripts)
		defer close(errs)

		r.mu.Lock()
		defer r.mu.Unlock()

		base := r.cmd[0]
		args := append([]string{}, r.cmd[1:]...)
		command := exec.CommandContext(ctx, base, args...)
		command.Stdin = bytes.NewReader(audio)
		var stdout, stderr bytes.Buffer
		command.Stdout = &stdout
		command.Stderr = &stderr

		if err := command.Run(); err != nil {
			errs <- fmt.Errorf("asr command failed: %w: %s", err, stderr.String())
			return
		}

		var resp execResult
		if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
			errs <- fmt.Errorf("decode asr response: %w", err)
			return
		}
		transcripts <- Transcript{Text: resp.Text, Confidence: resp.Confidence}
	}()
	return transcripts, errs
}
