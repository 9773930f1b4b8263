package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docmemory/internal/backup"
	"github.com/Aman-CERP/docmemory/internal/ingest"
	"github.com/Aman-CERP/docmemory/internal/output"
	"github.com/Aman-CERP/docmemory/internal/watcher"
)

type watchOptions struct {
	tags     []string
	noBackup bool
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and keep memory in sync",
		Long: `Watch a directory tree and ingest documents as they change.

A created or modified file replaces every record from that file; a
deleted file removes them. Scheduled backups and the auto-save pass run
while watching unless backup.enabled is false or --no-backup is set.

Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, g, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.tags, "tags", "t", nil, "Tags to attach to ingested records")
	cmd.Flags().BoolVar(&opts.noBackup, "no-backup", false, "Do not run scheduled backups")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, g *globalOptions, dir string, opts watchOptions) error {
	a, err := openApp(ctx, g, openOptions{embedder: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pipeline, err := ingest.New(ingest.Dependencies{
		Memory:   a.memory,
		Embedder: a.embedder,
		Chunker:  a.chunker(),
	}, ingest.Config{
		Workers:         a.cfg.Ingest.Workers,
		BatchSize:       a.cfg.Embeddings.BatchSize,
		EmbedderBackend: a.cfg.Embeddings.Provider,
	})
	if err != nil {
		return err
	}

	wopts := watcher.Options{
		DebounceWindow: a.cfg.Ingest.Debounce(),
		Filter:         pipeline.Supports,
	}
	if a.cfg.Storage.Path != "" {
		wopts.IgnoreDirs = []string{a.cfg.Storage.Path}
	}
	w, err := watcher.NewHybridWatcher(wopts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	if a.cfg.Backup.IsEnabled() && !opts.noBackup {
		sched := backup.NewScheduler(backup.NewManager(a.cfg.Storage.Path, a.cfg.Backup.Keep), a.memory, a.cfg.Backup)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	out := output.New(cmd.OutOrStdout())
	dispatcher := watcher.NewDispatcher(pipeline, ingest.Options{Tags: opts.tags})

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Start(ctx, dir) }()

	errs := w.Errors()
	out.Statusf("👀", "Watching %s (%s). Press Ctrl+C to stop.", dir, w.WatcherType())
	for {
		select {
		case <-ctx.Done():
			out.Status("", "Stopped.")
			return nil
		case err := <-watchErr:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			res := dispatcher.Handle(ctx, batch)
			out.Statusf("", "%d updated, %d removed, %d failed", res.Updated, res.Removed, res.Failed)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}
