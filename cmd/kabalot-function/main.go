// Command kabalot-function runs one ingestion pass per CloudEvent (Cloud
// Scheduler via Pub/Sub, or a Drive change notification). Configure it with
// KABALOT_* environment variables, typically KABALOT_BACKEND=gdrive and
// KABALOT_PROPERTIES_DRIVER=firestore.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/springcomet/kabalot/internal/app"
	"github.com/springcomet/kabalot/internal/common"
)

var (
	instance *app.App
	logger   *slog.Logger
	once     sync.Once
	initErr  error
)

func init() {
	functions.CloudEvent("Ingest", Ingest)
}

// main is required by the Go Functions Framework.
func main() {}

func setup() {
	cfg, err := common.LoadConfig("")
	if err != nil {
		initErr = err
		return
	}
	logger = app.NewLogger(cfg.Log)
	slog.SetDefault(logger)
	instance, initErr = app.Build(context.Background(), cfg, logger)
}

// Ingest processes every document not yet recorded in knownFileIDs.
func Ingest(ctx context.Context, e event.Event) error {
	once.Do(setup)
	if initErr != nil {
		slog.Error("function init failed", "error", initErr)
		return initErr
	}

	logger.Info("ingest.trigger", "event_id", e.ID(), "type", e.Type(), "source", e.Source())
	rep, err := instance.Service.RunOnce(ctx)
	if err != nil {
		return err
	}
	if rep.Aborted != "" {
		// not retryable; the properties have to be fixed by hand
		logger.Warn("ingest.trigger.aborted", "run_id", rep.RunID, "reason", rep.Aborted)
		return nil
	}
	if rep.Result.Interrupted {
		return fmt.Errorf("run %s interrupted after %d documents", rep.RunID, rep.Result.Stats.Processed)
	}
	return nil
}
