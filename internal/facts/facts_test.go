package facts

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_MemoryOnly(t *testing.T) {
	s := NewStore("")

	_, ok, err := s.Load("web1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("web1", Facts{"kernel": "Linux"}))

	f, ok, err := s.Load("web1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Linux", f["kernel"])
}

func TestStore_PersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, s.Save("web1", Facts{"arch": "arm64"}))

	// Fresh store, same dir: disk layer serves the facts
	s2 := NewStore(dir)
	f, ok, err := s2.Load("web1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "arm64", f["arch"])
}

func TestStore_CorruptFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web1.yaml"), []byte("{{not yaml"), 0o644))

	s := NewStore(dir)
	_, _, err := s.Load("web1")

	assert.Error(t, err)
}

func TestStore_PathFlattensSeparators(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, s.Save("deploy@web1:2222", Facts{"k": "v"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ":")
}

func TestCommandGatherer_CollectsProbeOutput(t *testing.T) {
	g := &CommandGatherer{Probes: map[string]string{
		"kernel": "uname -s",
		"broken": "definitely-missing-cmd",
	}}

	run := func(_ context.Context, cmd string) ([]byte, []byte, int, error) {
		if cmd == "uname -s" {
			return []byte("Linux\n"), nil, 0, nil
		}
		return nil, []byte("not found"), 127, nil
	}

	f, err := g.Gather(context.Background(), run)

	require.NoError(t, err)
	assert.Equal(t, "Linux", f["kernel"])
	_, ok := f["broken"]
	assert.False(t, ok) // failed probes are skipped
}

func TestCommandGatherer_ExecErrorSkipsProbe(t *testing.T) {
	g := &CommandGatherer{Probes: map[string]string{"kernel": "uname -s"}}

	run := func(_ context.Context, _ string) ([]byte, []byte, int, error) {
		return nil, nil, -1, stderrors.New("connection lost")
	}

	f, err := g.Gather(context.Background(), run)

	require.NoError(t, err)
	assert.Empty(t, f)
}
