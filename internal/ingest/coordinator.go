// Package ingest drives new documents in the input folder through extraction,
// field mining, artifact writing and the extraction log.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/extract"
	"github.com/springcomet/kabalot/internal/fields"
	"github.com/springcomet/kabalot/internal/ledger"
	"github.com/springcomet/kabalot/internal/properties"
	"github.com/springcomet/kabalot/internal/storage"
)

// Coordinator processes documents strictly one at a time. It never persists anything
// itself: the updated known set is returned to the caller.
type Coordinator struct {
	files     storage.FileStore
	extractor extract.TextExtractor
	patterns  fields.Set
	artifacts ArtifactWriter
	log       LogAppender
	logger    *slog.Logger
}

func NewCoordinator(
	files storage.FileStore,
	extractor extract.TextExtractor,
	patterns fields.Set,
	artifacts ArtifactWriter,
	log LogAppender,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if patterns == nil {
		patterns = fields.DefaultSet()
	}
	return &Coordinator{
		files:     files,
		extractor: extractor,
		patterns:  patterns,
		artifacts: artifacts,
		log:       log,
		logger:    logger,
	}
}

// Run processes every document in inputFolderID whose id is not in known.
// Failing to list the input folder, resolve the output folder or ensure the log
// is fatal and returns an error; per-document failures are recorded in the result.
// A document joins the returned set only after its row was appended, and never in test mode.
func (c *Coordinator) Run(ctx context.Context, inputFolderID, outputFolderName string, known properties.KnownFiles, mode constants.RunMode) (RunResult, error) {
	logger := common.LoggerFromContext(ctx, c.logger)
	res := RunResult{Known: known}

	children, err := c.files.List(ctx, inputFolderID)
	if err != nil {
		return res, common.NewAppError(common.CodeStorage, "list input folder", err)
	}
	out, created, err := storage.EnsureFolder(ctx, c.files, inputFolderID, outputFolderName, children)
	if err != nil {
		return res, common.NewAppError(common.CodeStorage, "resolve output folder", err)
	}
	if created {
		logger.Info("ingest.output.created", "folder_id", out.ID, "name", out.Name)
	}
	res.OutputFolder = out

	tbl, err := c.log.Ensure(ctx, out.ID)
	if err != nil {
		return res, err
	}
	res.Log = tbl

	docs := storage.Documents(children)
	res.Stats.Listed = len(docs)
	var fresh []storage.File
	for _, d := range docs {
		if !known.Contains(d.ID) {
			fresh = append(fresh, d)
		}
	}
	res.Stats.New = len(fresh)
	logger.Info("ingest.run.start", "input_folder_id", inputFolderID, "listed", len(docs), "new", len(fresh), "mode", string(mode))

	var done []string
	for _, f := range fresh {
		if ctx.Err() != nil {
			res.Interrupted = true
			logger.Warn("ingest.run.interrupted", "remaining", len(fresh)-len(res.Results), "error", ctx.Err())
			break
		}
		dr := c.process(ctx, logger, f, out.ID, tbl)
		res.Results = append(res.Results, dr)
		switch dr.Status {
		case constants.DocumentProcessed:
			res.Stats.Processed++
			done = append(done, f.ID)
		case constants.DocumentSkipped:
			res.Stats.Skipped++
		case constants.DocumentFailed:
			res.Stats.Failed++
		}
	}

	if mode != constants.RunModeTest {
		res.Known = known.With(done...)
	}
	return res, nil
}

// process runs one document inside its fault boundary.
func (c *Coordinator) process(ctx context.Context, logger *slog.Logger, f storage.File, folderID string, tbl ledger.Table) (dr DocumentResult) {
	start := time.Now()
	dr = DocumentResult{File: f, Status: constants.DocumentFailed}
	log := logger.With("file_id", f.ID, "name", f.Name)

	defer func() {
		if r := recover(); r != nil {
			dr.Status = constants.DocumentFailed
			dr.Err = fmt.Errorf("panic: %v", r)
		}
		dr.Duration = time.Since(start)
		switch dr.Status {
		case constants.DocumentFailed:
			log.Error("ingest.document.failed", "error", dr.Err, "duration", dr.Duration)
		case constants.DocumentSkipped:
			log.Warn("ingest.document.skipped", "reason", "no text extracted", "method", dr.Method)
		default:
			log.Info("ingest.document.ok", "method", dr.Method, "duration", dr.Duration)
		}
	}()

	ext, err := c.extractor.Extract(ctx, f)
	if err != nil {
		dr.Err = err
		return dr
	}
	dr.Method = ext.Method
	if ext.Text == "" {
		dr.Status = constants.DocumentSkipped
		return dr
	}

	dr.Fields = c.patterns.Extract(ext.Text)

	link, err := c.artifacts.Write(ctx, f.Name, ext.Text, folderID)
	if err != nil {
		dr.Err = err
		return dr
	}
	dr.ArtifactLink = link

	if err := c.log.Append(ctx, tbl, f, ext.Text, dr.Fields, link); err != nil {
		dr.Err = err
		return dr
	}
	dr.Status = constants.DocumentProcessed
	return dr
}
