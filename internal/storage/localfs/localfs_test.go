package localfs

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/ocr"
	"github.com/springcomet/kabalot/internal/storage"
)

type fakeEngine struct {
	text  string
	err   error
	paths []string
}

func (f *fakeEngine) ExtractPDF(_ context.Context, path string) (ocr.Result, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Text: f.text, Pages: 1, Method: "pdf-ocr"}, nil
}

func newStore(t *testing.T, engine PDFEngine) *Store {
	t.Helper()
	s, err := New(t.TempDir(), engine, nil)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, s *Store, rel string, content []byte) {
	t.Helper()
	p := filepath.Join(s.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(docxBody)
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), nil, nil)
	assert.Error(t, err)

	_, err = New("  ", nil, nil)
	assert.True(t, common.IsConfigError(err))
}

func TestPathRejectsEscapes(t *testing.T) {
	s := newStore(t, nil)

	for _, id := range []string{"..", "../x", "a/../../x", "/etc/passwd"} {
		_, err := s.Path(id)
		assert.ErrorIs(t, err, common.ErrInvalidInput, id)
	}

	p, err := s.Path("inbox/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "inbox", "a.pdf"), p)

	p, err = s.Path("")
	require.NoError(t, err)
	assert.Equal(t, s.Root(), p)
}

func TestListSkipsHiddenAndTypesEntries(t *testing.T) {
	s := newStore(t, nil)
	writeFile(t, s, "inbox/b.txt", []byte("b"))
	writeFile(t, s, "inbox/a.pdf", []byte("%PDF"))
	writeFile(t, s, "inbox/.DS_Store", []byte("x"))
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "inbox", "out"), 0o755))

	files, err := s.List(context.Background(), "inbox")
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, storage.File{ID: "inbox/a.pdf", Name: "a.pdf", MimeType: constants.MimePDF}, files[0])
	assert.Equal(t, storage.File{ID: "inbox/b.txt", Name: "b.txt", MimeType: constants.MimePlainText}, files[1])
	assert.True(t, files[2].IsFolder)
	assert.Equal(t, "inbox/out", files[2].ID)

	_, err = s.List(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateFileNeverOverwrites(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	f1, err := s.CreateFile(ctx, ".", "a.pdf.txt", constants.MimePlainText, []byte("one"))
	require.NoError(t, err)
	f2, err := s.CreateFile(ctx, ".", "a.pdf.txt", constants.MimePlainText, []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, "a.pdf.txt", f1.ID)
	assert.Equal(t, "a.pdf (1).txt", f2.ID)

	b, err := s.Read(ctx, f1.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))

	_, err = s.CreateFile(ctx, ".", "../evil", "", nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFindOrCreateFolderReusesFolder(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "inbox"), 0o755))

	first, created, err := storage.FindOrCreateFolder(ctx, s, "inbox", "Processed")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := storage.FindOrCreateFolder(ctx, s, "inbox", "Processed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	children, err := s.List(ctx, "inbox")
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestDelete(t *testing.T) {
	s := newStore(t, nil)
	writeFile(t, s, "x.txt", []byte("x"))

	require.NoError(t, s.Delete(context.Background(), "x.txt"))
	_, err := s.Read(context.Background(), "x.txt")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, s.Delete(context.Background(), "."), common.ErrInvalidInput)
}

func TestOCRUsesEngine(t *testing.T) {
	engine := &fakeEngine{text: "שלום"}
	s := newStore(t, engine)
	writeFile(t, s, "scan.pdf", []byte("%PDF"))

	txt, err := s.OCR(context.Background(), storage.File{ID: "scan.pdf", Name: "scan.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "שלום", txt)
	assert.Equal(t, []string{filepath.Join(s.Root(), "scan.pdf")}, engine.paths)

	engine.err = errors.New("tesseract exploded")
	_, err = s.OCR(context.Background(), storage.File{ID: "scan.pdf", Name: "scan.pdf"})
	assert.ErrorContains(t, err, "tesseract exploded")
}

func TestDocumentTextReadsDocx(t *testing.T) {
	s := newStore(t, nil)
	writeFile(t, s, "inv.docx", buildDocx(t,
		`<w:p><w:r><w:t>חשבונית מס</w:t></w:r><w:r><w:tab/><w:t>מספר 12</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t xml:space="preserve">לתשלום: 5</w:t></w:r></w:p>`))

	txt, err := s.DocumentText(context.Background(), storage.File{ID: "inv.docx", MimeType: constants.MimeDocx})
	require.NoError(t, err)
	assert.Equal(t, "חשבונית מס\tמספר 12\nלתשלום: 5\n", txt)

	writeFile(t, s, "broken.docx", []byte("not a zip"))
	_, err = s.DocumentText(context.Background(), storage.File{ID: "broken.docx", MimeType: constants.MimeDocx})
	assert.Error(t, err)
}

func TestLink(t *testing.T) {
	s := newStore(t, nil)
	link := s.Link("out/a.pdf.txt")
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(s.Root(), "out", "a.pdf.txt")), link)
}
