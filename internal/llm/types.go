package llm

import "context"

// Message is one chat entry sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a chat completion call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	Content string
	Done    bool
}

// Generator defines a pluggable LLM backend. Generate invokes consumer
// for every streamed chunk, in order; a consumer error aborts the stream.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}
