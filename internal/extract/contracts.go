package extract

import (
	"context"
	"time"

	"github.com/springcomet/kabalot/internal/storage"
)

// TextExtractor is stage 1: document -> normalized text.
// An empty Text with a nil error is a soft failure: nothing usable was read.
type TextExtractor interface {
	Extract(ctx context.Context, f storage.File) (Result, error)
}

// Extraction methods, in dispatch priority order.
const (
	MethodOCR         = "ocr"
	MethodDocument    = "document"
	MethodUnsupported = "unsupported"
	MethodDecode      = "decode"
)

type Result struct {
	Text          string
	Method        string
	SourceDeleted bool // native documents are consumed after a successful read
	Duration      time.Duration
}
