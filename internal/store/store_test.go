package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxrelay/voxrelay/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeralIsNoOp(t *testing.T) {
	cfg := config.StoreConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendTurn(context.Background(), "s1", "user", "hello"); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	turns, err := s.ListTurns(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if turns != nil {
		t.Fatalf("ephemeral store should record nothing, got %d turns", len(turns))
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	if err := s.AppendSession(context.Background(), "s1", "socrates"); err != nil {
		t.Fatalf("append session on nil store: %v", err)
	}
	if err := s.AppendTurn(context.Background(), "s1", "user", "hello"); err != nil {
		t.Fatalf("append turn on nil store: %v", err)
	}
	turns, err := s.ListTurns(context.Background(), "s1", 10)
	if err != nil || turns != nil {
		t.Fatalf("list turns on nil store: turns=%v err=%v", turns, err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune on nil store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func TestAppendAndListTurns(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(tmp, "voxrelay.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendSession(context.Background(), "s1", "socrates"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.AppendTurn(context.Background(), "s1", "user", "What is courage?"); err != nil {
		t.Fatalf("append user turn: %v", err)
	}
	if err := s.AppendTurn(context.Background(), "s1", "assistant", "Courage is knowledge."); err != nil {
		t.Fatalf("append assistant turn: %v", err)
	}

	turns, err := s.ListTurns(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Fatalf("unexpected turn order: %s then %s", turns[0].Role, turns[1].Role)
	}
	if turns[1].Content != "Courage is knowledge." {
		t.Fatalf("unexpected content: %s", turns[1].Content)
	}
}

func TestAppendTurnWithoutSessionRow(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(tmp, "voxrelay.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendTurn(context.Background(), "orphan", "user", "hi"); err != nil {
		t.Fatalf("append turn should create the session row: %v", err)
	}
	turns, err := s.ListTurns(context.Background(), "orphan", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(tmp, "voxrelay.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.AppendSession(context.Background(), "old-session", "socrates"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.AppendTurn(context.Background(), "old-session", "user", "hello"); err != nil {
		t.Fatalf("append turn: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.AppendSession(context.Background(), "new-session", "sherlock"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	turns, err := s.ListTurns(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected old session pruned, got %d turns", len(turns))
	}
}
