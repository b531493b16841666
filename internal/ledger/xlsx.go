package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/storage"
)

// XLSXCellLimit is the Excel per-cell character limit.
const XLSXCellLimit = 32767

const xlsxExt = ".xlsx"

// PathResolver maps a file id to a path on disk.
type PathResolver interface {
	Path(id string) (string, error)
}

// XLSXStore keeps each table as a workbook file in a local FileStore.
type XLSXStore struct {
	files  storage.FileStore
	paths  PathResolver
	logger *slog.Logger
}

var _ TableStore = (*XLSXStore)(nil)

func NewXLSXStore(files storage.FileStore, paths PathResolver, logger *slog.Logger) *XLSXStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXStore{files: files, paths: paths, logger: logger}
}

func (s *XLSXStore) Find(ctx context.Context, folderID, name string) (Table, bool, error) {
	children, err := s.files.List(ctx, folderID)
	if err != nil {
		return Table{}, false, err
	}
	for _, c := range children {
		if !c.IsFolder && c.Name == name+xlsxExt {
			return Table{ID: c.ID, Name: name}, true, nil
		}
	}
	return Table{}, false, nil
}

func (s *XLSXStore) Create(ctx context.Context, folderID, name string) (Table, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return Table{}, fmt.Errorf("name sheet: %w", err)
	}
	// Widen a few columns
	_ = f.SetColWidth(name, "A", "A", 28) // file name
	_ = f.SetColWidth(name, "B", "C", 48) // links
	_ = f.SetColWidth(name, "D", "D", 60) // text
	_ = f.SetColWidth(name, "E", "G", 14) // fields

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Table{}, fmt.Errorf("xlsx write: %w", err)
	}
	created, err := s.files.CreateFile(ctx, folderID, name+xlsxExt, constants.MimeXLSX, buf.Bytes())
	if err != nil {
		return Table{}, err
	}
	return Table{ID: created.ID, Name: name}, nil
}

func (s *XLSXStore) AppendRow(ctx context.Context, t Table, cells []string) error {
	path, err := s.paths.Path(t.ID)
	if err != nil {
		return err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.ID, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("set row: %w", err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("save %s: %w", t.ID, err)
	}
	return nil
}

func (s *XLSXStore) CellLimit() int { return XLSXCellLimit }

// Rows reads every row of t, header included.
func (s *XLSXStore) Rows(t Table) ([][]string, error) {
	path, err := s.paths.Path(t.ID)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.ID, err)
	}
	defer f.Close()
	return f.GetRows(f.GetSheetName(0))
}
