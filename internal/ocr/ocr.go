package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "heb"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 300
	MaxPages      int // 0 = no limit

	// PreferTextLayer tries pdftotext first and only falls back to OCR when the PDF has no text layer.
	PreferTextLayer bool
}

type Result struct {
	Text     string
	Pages    int
	Method   string // "pdf-text" | "pdf-ocr"
	Language string
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg        Config
	runner     Runner
	logger     *slog.Logger
	countPages func(path string) (int, error)
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	return NewExtractorWithRunner(cfg, NewCommandRunner(logger), logger)
}

// NewExtractorWithRunner builds an Extractor that shells out through r.
func NewExtractorWithRunner(cfg Config, r Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "heb"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{
		cfg:        cfg,
		runner:     r,
		logger:     logger,
		countPages: func(path string) (int, error) { return api.PageCountFile(path) },
	}
}

// Language is the fixed recognition language passed to tesseract.
func (e *Extractor) Language() string { return e.cfg.TesseractLang }

// ExtractPDF recognizes the text of a (possibly scanned) PDF at path.
// Rendered page images live in a temp dir that is removed before returning.
func (e *Extractor) ExtractPDF(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	e.logger.Debug("starting pdf extraction", "path", path, "prefer_text_layer", e.cfg.PreferTextLayer)

	pages, err := e.countPages(path)
	if err != nil {
		e.logger.Error("pdf validation failed", "path", path, "error", err)
		return Result{}, fmt.Errorf("read pdf: %w", err)
	}

	if e.cfg.PreferTextLayer {
		txt, n, warns, err := e.pdfToText(ctx, path)
		if err == nil && Normalize(txt) != "" {
			return Result{
				Text:     Normalize(txt),
				Pages:    n,
				Method:   "pdf-text",
				Duration: time.Since(start),
				Warnings: warns,
			}, nil
		}
		e.logger.Debug("no text layer, falling back to ocr", "path", path, "pages", pages)
	}

	txt, n, warns, err := e.pdfToOCR(ctx, path, pages)
	if err != nil {
		return Result{Warnings: warns}, err
	}
	return Result{
		Text:     Normalize(txt),
		Pages:    n,
		Method:   "pdf-ocr",
		Language: e.cfg.TesseractLang,
		Duration: time.Since(start),
		Warnings: warns,
	}, nil
}
