// Package app wires configuration into a ready-to-run ingestion service.
package app

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/springcomet/kabalot/internal/artifact"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/extract"
	"github.com/springcomet/kabalot/internal/fields"
	"github.com/springcomet/kabalot/internal/ingest"
	"github.com/springcomet/kabalot/internal/ledger"
	"github.com/springcomet/kabalot/internal/ocr"
	"github.com/springcomet/kabalot/internal/properties"
	"github.com/springcomet/kabalot/internal/storage"
	"github.com/springcomet/kabalot/internal/storage/gdrive"
	"github.com/springcomet/kabalot/internal/storage/localfs"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config  *common.Config
	Props   properties.Backend
	Files   storage.FileStore
	Service *ingest.Service
	// Local is set only for the local backend; the watcher needs its paths.
	Local *localfs.Store
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg common.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// Build validates cfg and assembles the pipeline for the configured backend.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	decoder, err := extract.NewDecoder(cfg.Decode.FallbackCharset)
	if err != nil {
		return nil, err
	}
	patterns, err := fields.LoadSet(cfg.Fields.PatternsFile)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	var tables ledger.TableStore
	switch cfg.Backend {
	case common.BackendLocal:
		engine := ocr.NewExtractor(ocr.Config{
			Pdftotext:       cfg.OCR.Pdftotext,
			Pdftoppm:        cfg.OCR.Pdftoppm,
			Tesseract:       cfg.OCR.Tesseract,
			TesseractLang:   cfg.OCR.TesseractLang,
			TessdataDir:     cfg.OCR.TessdataDir,
			DPI:             cfg.OCR.DPI,
			MaxPages:        cfg.OCR.MaxPages,
			PreferTextLayer: cfg.OCR.PreferTextLayer,
		}, logger)
		local, err := localfs.New(cfg.Local.Root, engine, logger)
		if err != nil {
			return nil, err
		}
		a.Local = local
		a.Files = local
		tables = ledger.NewXLSXStore(local, local, logger)
	case common.BackendGDrive:
		opts := []option.ClientOption{option.WithScopes(drive.DriveScope, sheets.SpreadsheetsScope)}
		if cfg.Drive.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Drive.CredentialsFile))
		}
		store, err := gdrive.New(ctx, gdrive.Config{
			RequestsPerSecond: cfg.Drive.RequestsPerSecond,
			Burst:             cfg.Drive.Burst,
			MaxRetries:        cfg.Drive.MaxRetries,
			RetryBaseDelay:    cfg.Drive.RetryBaseDelay,
			OCRLanguage:       cfg.Drive.OCRLanguage,
		}, logger, opts...)
		if err != nil {
			return nil, err
		}
		sheetsSvc, err := sheets.NewService(ctx, opts...)
		if err != nil {
			return nil, common.NewAppError(common.CodeStorage, "create sheets client", err)
		}
		a.Files = store
		tables = ledger.NewSheetsStore(store, sheetsSvc, store, logger)
	}

	props, err := properties.Open(ctx, cfg.Properties, logger)
	if err != nil {
		return nil, err
	}
	a.Props = props

	coordinator := ingest.NewCoordinator(
		a.Files,
		extract.NewExtractor(a.Files, decoder, logger),
		patterns,
		artifact.NewWriter(a.Files, logger),
		ledger.NewAppender(tables, a.Files, logger),
		logger,
	)
	a.Service = ingest.NewService(props, coordinator, logger)
	logger.Info("app.ready", "backend", cfg.Backend, "properties", cfg.Properties.Driver)
	return a, nil
}

func (a *App) Close() error {
	if a.Props == nil {
		return nil
	}
	return a.Props.Close()
}
