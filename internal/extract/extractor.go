// Package extract turns a stored document into normalized text, dispatching on its kind.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/ocr"
	"github.com/springcomet/kabalot/internal/storage"
)

type Extractor struct {
	files   storage.FileStore
	decoder *Decoder
	logger  *slog.Logger
}

var _ TextExtractor = (*Extractor)(nil)

func NewExtractor(files storage.FileStore, decoder *Decoder, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if decoder == nil {
		decoder = &Decoder{}
	}
	return &Extractor{files: files, decoder: decoder, logger: logger}
}

// Extract reads f by kind:
//  1. PDF (mime or .pdf suffix): backend OCR; errors propagate.
//  2. native rich-text document: read directly, then delete the source.
//  3. other platform-proprietary type: empty.
//  4. anything else: decode the raw bytes.
//
// Only OCR and raw read failures are returned as errors; everything else that
// yields no text is logged and returned as an empty Result.
func (e *Extractor) Extract(ctx context.Context, f storage.File) (Result, error) {
	start := time.Now()
	log := e.logger.With("file_id", f.ID, "name", f.Name, "mime_type", f.MimeType)

	var (
		res Result
		raw string
	)
	switch {
	case constants.IsPDF(f.MimeType, f.Name):
		res.Method = MethodOCR
		txt, err := e.files.OCR(ctx, f)
		if err != nil {
			return Result{}, fmt.Errorf("ocr %s: %w", f.Name, err)
		}
		raw = txt

	case constants.IsNativeDocument(f.MimeType):
		res.Method = MethodDocument
		txt, err := e.files.DocumentText(ctx, f)
		if err != nil {
			log.Warn("failed to read document, leaving source in place", "error", err)
			break
		}
		raw = txt
		if err := e.files.Delete(ctx, f.ID); err != nil {
			log.Error("failed to delete consumed document", "error", err)
		} else {
			res.SourceDeleted = true
		}

	case constants.IsProprietary(f.MimeType):
		res.Method = MethodUnsupported
		log.Warn("no text extraction for this document type")

	default:
		res.Method = MethodDecode
		b, err := e.files.Read(ctx, f.ID)
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
		txt, err := e.decoder.Decode(b)
		if err != nil {
			log.Warn("failed to decode document", "size", len(b), "error", err)
			break
		}
		raw = txt
	}

	res.Text = ocr.Normalize(raw)
	res.Duration = time.Since(start)
	log.Debug("content extracted", "method", res.Method, "chars", len([]rune(res.Text)), "duration", res.Duration)
	return res, nil
}
