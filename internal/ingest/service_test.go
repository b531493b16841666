package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/properties"
)

type countingProps struct {
	*properties.Memory
	sets int
}

func (c *countingProps) Set(ctx context.Context, key, value string) error {
	c.sets++
	return c.Memory.Set(ctx, key, value)
}

func newService(t *testing.T, f *fixture, settings map[string]string) (*Service, *countingProps) {
	t.Helper()
	props := &countingProps{Memory: properties.NewMemory()}
	for k, v := range settings {
		require.NoError(t, props.Memory.Set(context.Background(), k, v))
	}
	return NewService(props, f.coord, nil), props
}

func knownProperty(t *testing.T, p *countingProps) string {
	t.Helper()
	v, _, err := p.Get(context.Background(), constants.PropKnownFileIDs)
	require.NoError(t, err)
	return v
}

func TestRunOncePersistsKnownFiles(t *testing.T) {
	f := newFixture(t)
	a := f.addText("a.txt", "x")
	svc, props := newService(t, f, map[string]string{
		constants.PropInputFolderID:    f.inbox.ID,
		constants.PropOutputFolderName: outputName,
	})

	rep, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.True(t, rep.Persisted)
	assert.Equal(t, `["`+a.ID+`"]`, knownProperty(t, props))

	// nothing new: the property is not rewritten
	rep, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Persisted)
	assert.Equal(t, 1, props.sets)
	assert.Len(t, f.tables.dataRows(t), 1)
}

func TestRunOnceTestModeLeavesPropertyUntouched(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	f.addText("b.txt", "y")
	svc, props := newService(t, f, map[string]string{
		constants.PropInputFolderID:    f.inbox.ID,
		constants.PropOutputFolderName: outputName,
		constants.PropRunMode:          "test",
		constants.PropKnownFileIDs:     `["old"]`,
	})

	rep, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.RunModeTest, rep.Mode)
	assert.False(t, rep.Persisted)
	assert.Equal(t, 2, rep.Result.Stats.Processed)
	assert.Equal(t, 0, props.sets)
	assert.Equal(t, `["old"]`, knownProperty(t, props))

	k, err := properties.ParseKnownFiles(knownProperty(t, props))
	require.NoError(t, err)
	assert.Equal(t, 1, k.Len())
}

func TestRunOnceMissingPropertyAbortsCleanly(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	svc, props := newService(t, f, map[string]string{
		constants.PropInputFolderID: f.inbox.ID,
	})

	rep, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Contains(t, rep.Aborted, constants.PropOutputFolderName)
	assert.Equal(t, 0, props.sets)
	assert.Len(t, f.mem.Children(f.inbox.ID), 1, "no output folder created")
	assert.Empty(t, f.tables.rows)
}

func TestRunOnceInvalidKnownFilesAbortsCleanly(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	svc, props := newService(t, f, map[string]string{
		constants.PropInputFolderID:    f.inbox.ID,
		constants.PropOutputFolderName: outputName,
		constants.PropKnownFileIDs:     `{"not":"an array"}`,
	})

	rep, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Aborted)
	assert.Equal(t, 0, props.sets)
	assert.Len(t, f.mem.Children(f.inbox.ID), 1)
}

func TestRunOnceFatalRunPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	f.mem.CreateErr[outputName] = assert.AnError
	svc, props := newService(t, f, map[string]string{
		constants.PropInputFolderID:    f.inbox.ID,
		constants.PropOutputFolderName: outputName,
	})

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, props.sets)
}
