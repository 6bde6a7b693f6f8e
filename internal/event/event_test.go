package event

import (
	"encoding/json"
	"testing"
)

func TestMarshalChunkKeepsIsEnd(t *testing.T) {
	data, err := json.Marshal(Chunk("data:audio/mp3;base64,AAAA", 0, false))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire["type"] != "tts-chunk" {
		t.Fatalf("unexpected type %v", wire["type"])
	}
	// is_end must be present even when false so clients can rely on it.
	if v, ok := wire["is_end"]; !ok || v != false {
		t.Fatalf("expected is_end=false on the wire, got %v (present=%v)", v, ok)
	}
	if wire["seq"] != float64(0) {
		t.Fatalf("expected seq 0, got %v", wire["seq"])
	}
}

func TestMarshalTokenShape(t *testing.T) {
	data, err := json.Marshal(Token("hi"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"llm-token","token":"hi"}` {
		t.Fatalf("unexpected wire form: %s", data)
	}
}

func TestTerminalErrors(t *testing.T) {
	if !TranscribeErr("x").IsTerminalError() {
		t.Fatal("stt-error should be terminal")
	}
	if Warning("x").IsTerminalError() {
		t.Fatal("tts-warning should not be terminal")
	}
	if Final("x").IsTerminalError() {
		t.Fatal("stt-final should not be terminal")
	}
}
