// Package artifact stores the normalized text of a document next to the extraction log.
package artifact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/storage"
)

type Writer struct {
	files  storage.FileStore
	logger *slog.Logger
}

func NewWriter(files storage.FileStore, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{files: files, logger: logger}
}

// Name is the artifact name for a document: the original name plus ".txt".
func Name(original string) string { return original + constants.ArtifactExt }

// Write creates <name>.txt in folderID and returns its link. Empty text writes nothing and returns "".
func (w *Writer) Write(ctx context.Context, name, text, folderID string) (string, error) {
	if text == "" {
		return "", nil
	}
	f, err := w.files.CreateFile(ctx, folderID, Name(name), constants.MimePlainText, []byte(text))
	if err != nil {
		return "", fmt.Errorf("write artifact for %q: %w", name, err)
	}
	w.logger.Debug("artifact written", "name", f.Name, "artifact_id", f.ID, "folder_id", folderID)
	return w.files.Link(f.ID), nil
}
