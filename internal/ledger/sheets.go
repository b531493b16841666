package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/sheets/v4"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/storage"
)

// SheetsCellLimit is the Google Sheets per-cell character limit.
const SheetsCellLimit = 50000

// Caller runs one non-idempotent API request with pacing and safe retries.
type Caller interface {
	CallWrite(ctx context.Context, op string, fn func() error) error
}

// SheetsStore keeps each table as a Google Sheets spreadsheet found through Drive.
type SheetsStore struct {
	files  storage.FileStore
	svc    *sheets.Service
	caller Caller
	logger *slog.Logger
}

var _ TableStore = (*SheetsStore)(nil)

func NewSheetsStore(files storage.FileStore, svc *sheets.Service, caller Caller, logger *slog.Logger) *SheetsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetsStore{files: files, svc: svc, caller: caller, logger: logger}
}

func (s *SheetsStore) Find(ctx context.Context, folderID, name string) (Table, bool, error) {
	children, err := s.files.List(ctx, folderID)
	if err != nil {
		return Table{}, false, err
	}
	for _, c := range children {
		if c.MimeType == constants.MimeGoogleSheet && c.Name == name {
			return Table{ID: c.ID, Name: name}, true, nil
		}
	}
	return Table{}, false, nil
}

func (s *SheetsStore) Create(ctx context.Context, folderID, name string) (Table, error) {
	f, err := s.files.CreateFile(ctx, folderID, name, constants.MimeGoogleSheet, nil)
	if err != nil {
		return Table{}, err
	}
	return Table{ID: f.ID, Name: name}, nil
}

func (s *SheetsStore) AppendRow(ctx context.Context, t Table, cells []string) error {
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	vr := &sheets.ValueRange{Values: [][]any{values}}
	err := s.caller.CallWrite(ctx, "values.append", func() error {
		_, err := s.svc.Spreadsheets.Values.Append(t.ID, "A1", vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("append to %s: %w", t.ID, err)
	}
	return nil
}

func (s *SheetsStore) CellLimit() int { return SheetsCellLimit }
