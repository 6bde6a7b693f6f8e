package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystemPromptSurvivesOverflow(t *testing.T) {
	h := New("You are Socrates.", 4)
	for i := 0; i < 20; i++ {
		h.Append(RoleUser, fmt.Sprintf("question %d", i))
		h.Append(RoleAssistant, fmt.Sprintf("answer %d", i))
		require.LessOrEqual(t, h.Len(), 4)
		require.Equal(t, RoleSystem, h.Snapshot()[0].Role)
		require.Equal(t, "You are Socrates.", h.Snapshot()[0].Content)
	}
	// Newest entries are retained.
	require.Equal(t, "answer 19", h.Last().Content)
}

func TestTinyLimitClamped(t *testing.T) {
	h := New("prompt", 1)
	h.Append(RoleUser, "hello")
	require.Equal(t, 2, h.Len())
	require.Equal(t, RoleSystem, h.Snapshot()[0].Role)
	require.Equal(t, "hello", h.Last().Content)
}

func TestSnapshotIsCopy(t *testing.T) {
	h := New("prompt", 10)
	h.Append(RoleUser, "hi")
	snap := h.Snapshot()
	snap[0].Content = "mutated"
	require.Equal(t, "prompt", h.Snapshot()[0].Content)
}
