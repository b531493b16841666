package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWatcherRequiresDir(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}

func TestStartWatcherEmitsDocuments(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Dir: dir, Ignore: []string{outputName}, Debounce: 100 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, outputName), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.pdf"), []byte("%PDF"), 0o644))

	select {
	case p := <-events:
		assert.Equal(t, filepath.Join(dir, "invoice.pdf"), p)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for new document")
	}

	select {
	case p := <-events:
		t.Fatalf("unexpected extra event %s", p)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	for range events {
	}
}

func TestCandidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d"), 0o755))
	ignore := map[string]struct{}{"Processed": {}}

	assert.True(t, candidate(filepath.Join(dir, "a.pdf"), ignore))
	assert.False(t, candidate(filepath.Join(dir, ".a.pdf"), ignore))
	assert.False(t, candidate(filepath.Join(dir, "Processed"), ignore))
	assert.False(t, candidate(filepath.Join(dir, "d"), ignore))
}
