package ingest

import (
	"context"
	"time"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/fields"
	"github.com/springcomet/kabalot/internal/ledger"
	"github.com/springcomet/kabalot/internal/properties"
	"github.com/springcomet/kabalot/internal/storage"
)

// DocumentResult is the per-document outcome of a run.
type DocumentResult struct {
	File         storage.File
	Status       constants.DocumentStatus
	Method       string
	Fields       fields.Result
	ArtifactLink string
	Err          error
	Duration     time.Duration
}

// Stats summarizes a run.
type Stats struct {
	Listed    int // documents in the input folder
	New       int // documents not in the known set
	Processed int
	Skipped   int
	Failed    int
}

// RunResult is what the Coordinator hands back to its caller, who decides whether to persist Known.
type RunResult struct {
	Known        properties.KnownFiles
	OutputFolder storage.File
	Log          ledger.Table
	Stats        Stats
	Results      []DocumentResult
	// Interrupted is set when the context ended between documents; the rest were left for the next run.
	Interrupted bool
}

// ArtifactWriter is stage 3.
type ArtifactWriter interface {
	Write(ctx context.Context, name, text, folderID string) (string, error)
}

// LogAppender is stage 4.
type LogAppender interface {
	Ensure(ctx context.Context, folderID string) (ledger.Table, error)
	Append(ctx context.Context, t ledger.Table, f storage.File, text string, res fields.Result, artifactLink string) error
}
