// Package ledger maintains the append-only Extraction Log table.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/fields"
	"github.com/springcomet/kabalot/internal/storage"
)

// Table is a handle to a log table in the output folder.
type Table struct {
	ID   string
	Name string
}

// TableStore is the tabular append-only backend.
type TableStore interface {
	// Find looks for a table named name among the children of folderID.
	Find(ctx context.Context, folderID, name string) (Table, bool, error)
	// Create makes an empty table named name in folderID.
	Create(ctx context.Context, folderID, name string) (Table, error)
	AppendRow(ctx context.Context, t Table, cells []string) error
	// CellLimit is the longest cell value, in characters, the backend accepts.
	CellLimit() int
}

// Linker synthesizes a stable link from a document id.
type Linker interface {
	Link(id string) string
}

type Appender struct {
	tables TableStore
	links  Linker
	logger *slog.Logger
}

func NewAppender(tables TableStore, links Linker, logger *slog.Logger) *Appender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Appender{tables: tables, links: links, logger: logger}
}

// Ensure returns the Extraction Log in folderID, creating it with its header row when missing.
func (a *Appender) Ensure(ctx context.Context, folderID string) (Table, error) {
	t, found, err := a.tables.Find(ctx, folderID, constants.LogTableName)
	if err != nil {
		return Table{}, common.NewAppError(common.CodeLedger, "find extraction log", err)
	}
	if found {
		return t, nil
	}
	t, err = a.tables.Create(ctx, folderID, constants.LogTableName)
	if err != nil {
		return Table{}, common.NewAppError(common.CodeLedger, "create extraction log", err)
	}
	if err := a.tables.AppendRow(ctx, t, constants.LogHeader); err != nil {
		return Table{}, common.NewAppError(common.CodeLedger, "write extraction log header", err)
	}
	a.logger.Info("extraction log created", "table_id", t.ID, "folder_id", folderID)
	return t, nil
}

// Append adds one row for f:
// name, source link, artifact link, text, sum, num, date.
func (a *Appender) Append(ctx context.Context, t Table, f storage.File, text string, res fields.Result, artifactLink string) error {
	row := Row(f.Name, a.links.Link(f.ID), artifactLink, text, res)
	limit := a.tables.CellLimit()
	for i, c := range row {
		if cut, ok := truncate(c, limit); ok {
			a.logger.Warn("cell truncated", "file_id", f.ID, "column", constants.LogHeader[i], "limit", limit)
			row[i] = cut
		}
	}
	if err := a.tables.AppendRow(ctx, t, row); err != nil {
		return fmt.Errorf("append log row for %q: %w", f.Name, err)
	}
	return nil
}

// Row builds the log row in header order.
func Row(name, sourceLink, artifactLink, text string, res fields.Result) []string {
	return []string{
		name,
		sourceLink,
		artifactLink,
		text,
		res.Get(constants.FieldSum),
		res.Get(constants.FieldNum),
		res.Get(constants.FieldDate),
	}
}

func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	i := 0
	for n := 0; n < limit; n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], true
}
