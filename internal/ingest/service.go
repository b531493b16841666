package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/properties"
)

// Report describes one RunOnce invocation.
type Report struct {
	RunID     string
	Mode      constants.RunMode
	Result    RunResult
	Persisted bool
	// Aborted holds the configuration problem that stopped the run before any document was touched.
	Aborted  string
	Duration time.Duration
}

// Service is the entry point invoked per trigger: read properties, run, persist.
type Service struct {
	props       properties.Store
	coordinator *Coordinator
	logger      *slog.Logger
}

func NewService(props properties.Store, coordinator *Coordinator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{props: props, coordinator: coordinator, logger: logger}
}

// RunOnce performs one full pass. A configuration error is logged and reported in
// Report.Aborted with a nil error; only infrastructure failures are returned.
// The known set is written back only when it changed and the run mode is not test.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", rep.RunID)
	ctx = common.WithRunID(ctx, rep.RunID)
	ctx = common.WithLogger(ctx, logger)

	settings, err := properties.LoadSettings(ctx, s.props)
	if err != nil {
		if common.IsConfigError(err) {
			logger.Error("ingest.config.invalid", "error", err)
			rep.Aborted = err.Error()
			rep.Duration = time.Since(start)
			return rep, nil
		}
		return rep, err
	}
	rep.Mode = settings.Mode

	res, err := s.coordinator.Run(ctx, settings.InputFolderID, settings.OutputFolderName, settings.Known, settings.Mode)
	rep.Result = res
	if err != nil {
		logger.Error("ingest.run.failed", "error", err)
		rep.Duration = time.Since(start)
		return rep, err
	}

	if settings.Mode != constants.RunModeTest && !res.Known.Equal(settings.Known) {
		// persist even when ctx was cancelled mid-run so finished documents are not redone
		if err := properties.SaveKnownFiles(context.WithoutCancel(ctx), s.props, res.Known); err != nil {
			logger.Error("ingest.known.persist_failed", "error", err)
			rep.Duration = time.Since(start)
			return rep, err
		}
		rep.Persisted = true
	}

	rep.Duration = time.Since(start)
	logger.Info("ingest.run.done",
		"mode", string(settings.Mode),
		"listed", res.Stats.Listed,
		"new", res.Stats.New,
		"processed", res.Stats.Processed,
		"skipped", res.Stats.Skipped,
		"failed", res.Stats.Failed,
		"persisted", rep.Persisted,
		"known", res.Known.Len(),
		"duration", rep.Duration,
	)
	return rep, nil
}
