package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/app"
	"github.com/springcomet/kabalot/internal/async"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/ingest"
	"github.com/springcomet/kabalot/internal/properties"
	"github.com/springcomet/kabalot/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:          "kabalot",
		Short:        "Extract text and fields from documents dropped into a folder",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (KABALOT_* env vars override)")

	load := func() (*common.Config, *slog.Logger, error) {
		cfg, err := common.LoadConfig(configFile)
		if err != nil {
			return nil, nil, err
		}
		logger := app.NewLogger(cfg.Log)
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	root.AddCommand(newRunCmd(load), newWatchCmd(load), newPropsCmd(load))
	return root
}

type loader func() (*common.Config, *slog.Logger, error)

func newRunCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every new document once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to build app", "error", err)
				return err
			}
			defer a.Close()

			rep, err := a.Service.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			if rep.Aborted != "" {
				return fmt.Errorf("run aborted: %s", rep.Aborted)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: listed=%d new=%d processed=%d skipped=%d failed=%d persisted=%t\n",
				rep.RunID, rep.Result.Stats.Listed, rep.Result.Stats.New, rep.Result.Stats.Processed,
				rep.Result.Stats.Skipped, rep.Result.Stats.Failed, rep.Persisted)
			return nil
		},
	}
}

func newWatchCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run on a schedule and, for the local backend, whenever the input folder changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.Build(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to build app", "error", err)
				return err
			}
			defer a.Close()
			return watch(ctx, a, logger)
		},
	}
}

func watch(ctx context.Context, a *app.App, logger *slog.Logger) error {
	cfg := a.Config
	health := server.NewHealth(logger)

	queue := newRunQueue(ctx, cfg.Watch, func(ctx context.Context, job async.Job) error {
		rep, err := a.Service.RunOnce(ctx)
		if err == nil && rep.Aborted != "" {
			err = fmt.Errorf("run aborted: %s", rep.Aborted)
		}
		health.ReportRun(err)
		return err
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.Watch.HealthAddr != "" {
		g.Go(func() error { return health.ListenAndServe(gctx, cfg.Watch.HealthAddr) })
	}

	if cfg.Watch.Interval > 0 {
		g.Go(func() error {
			t := time.NewTicker(cfg.Watch.Interval)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case now := <-t.C:
					if err := queue.Enqueue(gctx, async.Job{Reason: "tick", SubmittedAt: now}); err != nil {
						return err
					}
				}
			}
		})
	}

	if a.Local != nil {
		if err := startFolderWatch(gctx, g, a, queue, logger); err != nil {
			return err
		}
	}

	if err := queue.Enqueue(ctx, async.Job{Reason: "startup", SubmittedAt: time.Now()}); err != nil {
		return err
	}
	logger.Info("watch.started", "interval", cfg.Watch.Interval, "health_addr", cfg.Watch.HealthAddr)

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	runs, coalesced := queue.Stats()
	logger.Info("watch.stopped", "runs", runs, "coalesced", coalesced)
	return err
}

// newRunQueue bounds every pass by watch.run_timeout; cancelling ctx interrupts the running pass.
func newRunQueue(ctx context.Context, cfg common.WatchConfig, run async.RunFunc, logger *slog.Logger) *async.RunQueue {
	return async.NewRunQueue(run, logger, async.WithBaseContext(ctx), async.WithRunTimeout(cfg.RunTimeout))
}

// startFolderWatch reads the input folder from properties once; a missing
// property only disables the watcher, ticks still run and report it.
func startFolderWatch(ctx context.Context, g *errgroup.Group, a *app.App, queue async.Queue, logger *slog.Logger) error {
	settings, err := properties.LoadSettings(ctx, a.Props)
	if err != nil {
		if common.IsConfigError(err) {
			logger.Warn("watch.folder.disabled", "error", err)
			return nil
		}
		return err
	}
	dir, err := a.Local.Path(settings.InputFolderID)
	if err != nil {
		logger.Warn("watch.folder.disabled", "error", err)
		return nil
	}

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Dir:      dir,
		Ignore:   []string{settings.OutputFolderName},
		Debounce: a.Config.Watch.Debounce,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	g.Go(func() error {
		for {
			select {
			case p, ok := <-events:
				if !ok {
					return nil
				}
				if err := queue.Enqueue(ctx, async.Job{Reason: "fsnotify", Path: p, SubmittedAt: time.Now()}); err != nil {
					return err
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watch.folder.error", "error", err)
			}
		}
	})
	return nil
}

func newPropsCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "props",
		Short: "Inspect or change the key-value properties",
	}

	open := func(ctx context.Context) (properties.Backend, error) {
		cfg, logger, err := load()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return properties.Open(ctx, cfg.Properties, logger)
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			v, ok, err := b.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("property %s: %w", args[0], common.ErrNotFound)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one property",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if key == constants.PropKnownFileIDs {
				if _, err := properties.ParseKnownFiles(value); err != nil {
					return err
				}
			}
			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			return b.Set(cmd.Context(), key, value)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print every property",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			all, err := b.List(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, all[k])
			}
			return nil
		},
	}

	cmd.AddCommand(get, set, list)
	return cmd
}
