package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/artifact"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/extract"
	"github.com/springcomet/kabalot/internal/fields"
	"github.com/springcomet/kabalot/internal/ledger"
	"github.com/springcomet/kabalot/internal/properties"
	"github.com/springcomet/kabalot/internal/storage"
	"github.com/springcomet/kabalot/internal/storage/storagetest"
)

const outputName = "Processed"

// memTables is a TableStore that keeps rows in memory and registers each table as a file in mem.
type memTables struct {
	mem       *storagetest.Memory
	rows      map[string][][]string
	appendErr map[string]error // keyed by the first cell of the row
}

func newMemTables(mem *storagetest.Memory) *memTables {
	return &memTables{mem: mem, rows: map[string][][]string{}, appendErr: map[string]error{}}
}

func (m *memTables) Find(ctx context.Context, folderID, name string) (ledger.Table, bool, error) {
	children, err := m.mem.List(ctx, folderID)
	if err != nil {
		return ledger.Table{}, false, err
	}
	for _, c := range children {
		if c.MimeType == constants.MimeGoogleSheet && c.Name == name {
			return ledger.Table{ID: c.ID, Name: name}, true, nil
		}
	}
	return ledger.Table{}, false, nil
}

func (m *memTables) Create(ctx context.Context, folderID, name string) (ledger.Table, error) {
	f, err := m.mem.CreateFile(ctx, folderID, name, constants.MimeGoogleSheet, nil)
	if err != nil {
		return ledger.Table{}, err
	}
	return ledger.Table{ID: f.ID, Name: name}, nil
}

func (m *memTables) AppendRow(_ context.Context, t ledger.Table, cells []string) error {
	if err := m.appendErr[cells[0]]; err != nil {
		return err
	}
	m.rows[t.ID] = append(m.rows[t.ID], append([]string(nil), cells...))
	return nil
}

func (m *memTables) CellLimit() int { return ledger.SheetsCellLimit }

// dataRows returns every row of the single extraction log, header excluded.
func (m *memTables) dataRows(t *testing.T) [][]string {
	t.Helper()
	require.Len(t, m.rows, 1)
	for _, rows := range m.rows {
		require.Equal(t, constants.LogHeader, rows[0])
		return rows[1:]
	}
	return nil
}

type fixture struct {
	mem    *storagetest.Memory
	tables *memTables
	inbox  storage.File
	coord  *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storagetest.NewMemory()
	tables := newMemTables(mem)
	dec, err := extract.NewDecoder("windows-1255")
	require.NoError(t, err)

	coord := NewCoordinator(
		mem,
		extract.NewExtractor(mem, dec, nil),
		fields.DefaultSet(),
		artifact.NewWriter(mem, nil),
		ledger.NewAppender(tables, mem, nil),
		nil,
	)
	return &fixture{
		mem:    mem,
		tables: tables,
		inbox:  mem.AddFolder(storagetest.RootID, "inbox"),
		coord:  coord,
	}
}

func (f *fixture) addText(name, text string) storage.File {
	return f.mem.AddFile(f.inbox.ID, name, constants.MimePlainText, []byte(text))
}

func (f *fixture) run(t *testing.T, known properties.KnownFiles, mode constants.RunMode) RunResult {
	t.Helper()
	res, err := f.coord.Run(context.Background(), f.inbox.ID, outputName, known, mode)
	require.NoError(t, err)
	return res
}

func TestRunProcessesNewDocuments(t *testing.T) {
	f := newFixture(t)
	a := f.addText("a.txt", "חשבונית מס/קבלה מספר 7890\nלתשלום: 123.45\nתאריך 29/02/2020")
	pdf := f.mem.AddFile(f.inbox.ID, "scan.pdf", constants.MimePDF, nil)
	f.mem.OCRText[pdf.ID] = "סה\"כ 50"

	res := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)

	assert.Equal(t, []string{a.ID, pdf.ID}, res.Known.IDs())
	assert.Equal(t, Stats{Listed: 2, New: 2, Processed: 2}, res.Stats)

	rows := f.tables.dataRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "a.txt", rows[0][0])
	assert.Equal(t, f.mem.Link(a.ID), rows[0][1])
	assert.Equal(t, res.Results[0].ArtifactLink, rows[0][2])
	assert.Equal(t, []string{"123.45", "7890", "29/02/2020"}, rows[0][4:])
	assert.Equal(t, []string{"50", "N/A", "N/A"}, rows[1][4:])

	var artifacts []string
	for _, c := range f.mem.Children(res.OutputFolder.ID) {
		if c.MimeType == constants.MimePlainText {
			artifacts = append(artifacts, c.Name)
		}
	}
	assert.Equal(t, []string{"a.txt.txt", "scan.pdf.txt"}, artifacts)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "לתשלום: 1")
	f.addText("b.txt", "לתשלום: 2")

	first := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)
	second := f.run(t, first.Known, constants.RunModeNormal)

	assert.True(t, second.Known.Equal(first.Known))
	assert.Equal(t, 0, second.Stats.New)
	assert.Len(t, f.tables.dataRows(t), 2)
}

func TestRunAtMostOneRowPerDocument(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	known := properties.KnownFiles{}
	for i := 0; i < 3; i++ {
		known = f.run(t, known, constants.RunModeNormal).Known
		if i == 0 {
			f.addText("b.txt", "y")
		}
	}

	counts := map[string]int{}
	for _, r := range f.tables.dataRows(t) {
		counts[r[0]]++
	}
	assert.Equal(t, map[string]int{"a.txt": 1, "b.txt": 1}, counts)
	assert.Equal(t, 2, known.Len())
}

func TestRunTestModeDoesNotMarkKnown(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	f.addText("b.txt", "y")
	known := properties.NewKnownFiles("gone")

	res := f.run(t, known, constants.RunModeTest)

	assert.True(t, res.Known.Equal(known))
	assert.Equal(t, 2, res.Stats.Processed)
	assert.Len(t, f.tables.dataRows(t), 2)
}

func TestRunIsolatesDocumentFailures(t *testing.T) {
	f := newFixture(t)
	d1 := f.addText("one.txt", "לתשלום: 1")
	d2 := f.mem.AddFile(f.inbox.ID, "two.pdf", constants.MimePDF, nil)
	d3 := f.addText("three.txt", "לתשלום: 3")
	f.mem.OCRErr[d2.ID] = errors.New("ocr backend unavailable")

	res := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)

	assert.Equal(t, []string{d1.ID, d3.ID}, res.Known.IDs())
	assert.Equal(t, Stats{Listed: 3, New: 3, Processed: 2, Failed: 1}, res.Stats)
	assert.Equal(t, constants.DocumentFailed, res.Results[1].Status)
	assert.ErrorContains(t, res.Results[1].Err, "ocr backend unavailable")

	rows := f.tables.dataRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "one.txt", rows[0][0])
	assert.Equal(t, "three.txt", rows[1][0])
}

func TestRunAppendFailureLeavesDocumentUnknown(t *testing.T) {
	f := newFixture(t)
	d1 := f.addText("one.txt", "a")
	f.addText("two.txt", "b")
	f.tables.appendErr["two.txt"] = errors.New("sheet locked")

	res := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)

	assert.Equal(t, []string{d1.ID}, res.Known.IDs())
	assert.Equal(t, 1, res.Stats.Failed)
}

func TestRunSkipsEmptyContentWithoutMarkingKnown(t *testing.T) {
	f := newFixture(t)
	f.mem.AddFile(f.inbox.ID, "budget", constants.MimeGoogleSheet, nil)
	f.mem.AddFile(f.inbox.ID, "blob.bin", "application/octet-stream", []byte{0x00, 0x01})
	f.addText("blank.txt", "   \n\n  ")
	ok := f.addText("ok.txt", "x")

	res := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)

	assert.Equal(t, []string{ok.ID}, res.Known.IDs())
	assert.Equal(t, Stats{Listed: 4, New: 4, Processed: 1, Skipped: 3}, res.Stats)
	assert.Len(t, f.tables.dataRows(t), 1)

	var artifacts int
	for _, c := range f.mem.Children(res.OutputFolder.ID) {
		if c.MimeType == constants.MimePlainText {
			artifacts++
		}
	}
	assert.Equal(t, 1, artifacts)
}

func TestRunReusesOutputFolder(t *testing.T) {
	f := newFixture(t)
	first := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)
	second := f.run(t, first.Known, constants.RunModeNormal)

	assert.Equal(t, first.OutputFolder.ID, second.OutputFolder.ID)
	assert.Equal(t, first.Log, second.Log)

	var folders int
	for _, c := range f.mem.Children(f.inbox.ID) {
		if c.IsFolder {
			folders++
		}
	}
	assert.Equal(t, 1, folders)
}

func TestRunOutputFolderNameIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	lower := f.mem.AddFolder(f.inbox.ID, "processed")

	res := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)
	assert.NotEqual(t, lower.ID, res.OutputFolder.ID)
	assert.Equal(t, outputName, res.OutputFolder.Name)
}

func TestRunNativeDocumentIsConsumed(t *testing.T) {
	f := newFixture(t)
	doc := f.mem.AddFile(f.inbox.ID, "invoice", constants.MimeGoogleDoc, nil)
	f.mem.DocText[doc.ID] = "קבלה מספר 12"

	res := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)

	assert.True(t, res.Known.Contains(doc.ID))
	assert.Contains(t, f.mem.Deleted, doc.ID)
	assert.Equal(t, "12", f.tables.dataRows(t)[0][5])
}

func TestRunFatalFailures(t *testing.T) {
	t.Run("output folder", func(t *testing.T) {
		f := newFixture(t)
		f.addText("a.txt", "x")
		f.mem.CreateErr[outputName] = errors.New("forbidden")

		_, err := f.coord.Run(context.Background(), f.inbox.ID, outputName, properties.KnownFiles{}, constants.RunModeNormal)
		require.Error(t, err)
		assert.ErrorContains(t, err, "forbidden")
		assert.Empty(t, f.tables.rows)
	})

	t.Run("extraction log", func(t *testing.T) {
		f := newFixture(t)
		f.addText("a.txt", "x")
		f.mem.CreateErr[constants.LogTableName] = errors.New("quota")

		res, err := f.coord.Run(context.Background(), f.inbox.ID, outputName, properties.NewKnownFiles("k"), constants.RunModeNormal)
		require.Error(t, err)
		assert.ErrorContains(t, err, "LEDGER_ERROR")
		assert.Equal(t, []string{"k"}, res.Known.IDs())
		assert.Empty(t, res.Results)
	})

	t.Run("input folder", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.coord.Run(context.Background(), "missing", outputName, properties.KnownFiles{}, constants.RunModeNormal)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestRunStopsBetweenDocumentsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.coord.Run(ctx, f.inbox.ID, outputName, properties.KnownFiles{}, constants.RunModeNormal)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 0, res.Known.Len())
}

type panickyExtractor struct{}

func (panickyExtractor) Extract(context.Context, storage.File) (extract.Result, error) {
	panic("boom")
}

func TestRunRecoversFromPanics(t *testing.T) {
	f := newFixture(t)
	f.addText("a.txt", "x")
	f.coord.extractor = panickyExtractor{}

	res := f.run(t, properties.KnownFiles{}, constants.RunModeNormal)
	assert.Equal(t, 1, res.Stats.Failed)
	assert.ErrorContains(t, res.Results[0].Err, "boom")
}
