package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
)

func localConfig(t *testing.T) *common.Config {
	t.Helper()
	v := common.NewViper()
	v.Set("backend", common.BackendLocal)
	v.Set("local.root", t.TempDir())
	v.Set("properties.driver", common.DriverMemory)
	cfg, err := common.LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestBuildLocalRunsEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := localConfig(t)
	root := cfg.Local.Root
	require.NoError(t, os.Mkdir(filepath.Join(root, "inbox"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "receipt.txt"), []byte("סה\"כ: 12.50\n"), 0o644))

	a, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Local)

	require.NoError(t, a.Props.Set(ctx, constants.PropInputFolderID, "inbox"))
	require.NoError(t, a.Props.Set(ctx, constants.PropOutputFolderName, "Processed"))

	rep, err := a.Service.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Aborted)
	assert.Equal(t, 1, rep.Result.Stats.Processed)
	assert.True(t, rep.Persisted)

	artifactText, err := os.ReadFile(filepath.Join(root, "inbox", "Processed", "receipt.txt.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(artifactText), "12.50")
	assert.FileExists(t, filepath.Join(root, "inbox", "Processed", constants.LogTableName+".xlsx"))

	raw, ok, err := a.Props.Get(ctx, constants.PropKnownFileIDs)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["inbox/receipt.txt"]`, raw)

	// second pass finds nothing new
	rep, err = a.Service.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Result.Stats.New)
	assert.False(t, rep.Persisted)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := localConfig(t)
	cfg.Backend = "ftp"
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, common.IsConfigError(err))
}

func TestBuildRejectsUnknownCharset(t *testing.T) {
	cfg := localConfig(t)
	cfg.Decode.FallbackCharset = "no-such-charset"
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	l := NewLogger(common.LogConfig{Level: "debug", Format: "text"})
	assert.True(t, l.Enabled(context.Background(), -4))

	l = NewLogger(common.LogConfig{Level: "bogus", Format: "json"})
	assert.False(t, l.Enabled(context.Background(), -4))
	assert.True(t, l.Enabled(context.Background(), 0))
}
