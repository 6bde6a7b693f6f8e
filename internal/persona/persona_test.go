package persona

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuiltinsPresent(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	p, err := r.Get("socrates")
	require.NoError(t, err)
	require.Equal(t, "Socrates", p.Name)
	require.NotEmpty(t, p.SystemPrompt)

	_, err = r.Get("nobody")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestCatalogFileOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	catalog := []byte(`
- id: socrates
  name: Socrates (custom)
  system_prompt: Custom prompt.
  default_voice: fable
- id: watson
  name: Dr. Watson
  system_prompt: You are Dr. Watson.
  default_voice: alloy
`)
	require.NoError(t, os.WriteFile(path, catalog, 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)

	p, err := r.Get("socrates")
	require.NoError(t, err)
	require.Equal(t, "Socrates (custom)", p.Name)
	require.Equal(t, "fable", p.DefaultVoice)

	_, err = r.Get("watson")
	require.NoError(t, err)
	// builtin sherlock survives the merge
	_, err = r.Get("sherlock")
	require.NoError(t, err)
}

func TestCreate(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	p, err := r.Create("Harry Potter", "wizard", "You are Harry Potter.", "")
	require.NoError(t, err)
	require.Equal(t, "alloy", p.DefaultVoice)

	got, err := r.Get(p.ID)
	require.NoError(t, err)
	require.Equal(t, "Harry Potter", got.Name)

	_, err = r.Create("", "", "", "")
	require.Error(t, err)
}
