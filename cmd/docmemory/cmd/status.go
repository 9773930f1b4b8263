package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docmemory/internal/embed"
	"github.com/Aman-CERP/docmemory/internal/telemetry"
	"github.com/Aman-CERP/docmemory/internal/ui"
)

type statusOptions struct {
	jsonOutput bool
	check      bool
	embedder   bool
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	var opts statusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory status",
		Long: `Show document count, index size, tombstones, backends and query
statistics for the storage directory.

--check runs a consistency check between the record store and the
indexes. --embedder probes the embedding provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output status as JSON")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Run a consistency check")
	cmd.Flags().BoolVar(&opts.embedder, "embedder", false, "Probe the embedding provider")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts statusOptions) error {
	a, err := openApp(ctx, g, openOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.memory.Stats(ctx)
	if err != nil {
		return err
	}

	info := ui.StatusInfo{
		StorageDir:      storageLabel(stats.Dir),
		Documents:       stats.Documents,
		IndexSize:       stats.IndexSize,
		Slots:           stats.Slots,
		Tombstones:      stats.Tombstones,
		FullTextDocs:    stats.FullTextDocs,
		Dimensions:      stats.Dimensions,
		VectorBackend:   stats.Backend,
		FullTextBackend: stats.FullTextBackend,
		DiskSize:        dirSize(stats.Dir),
		EmbedderType:    a.cfg.Embeddings.Provider,
		EmbedderModel:   embedderModel(a.cfg.Embeddings.Provider, a.cfg.Embeddings.Model, stats.Dimensions),
		EmbedderStatus:  "ready",
	}
	if st := a.memory.State(); st != nil {
		info.Version = st.SystemVersion
		info.Initialized = st.Initialized
		info.LastStart = st.LastStart
	}

	if opts.embedder {
		info.EmbedderStatus = probeEmbedder(ctx, a)
	} else if a.cfg.Embeddings.Provider != string(embed.ProviderStatic) {
		info.EmbedderStatus = "unchecked"
	}

	if opts.check {
		res, err := a.memory.Check(ctx)
		if err != nil {
			return err
		}
		info.Health = "healthy"
		if !res.Healthy() {
			info.Health = "degraded"
		}
		info.Issues = len(res.Issues)
	}

	addQueryStats(ctx, &info, stats.Dir)

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), g.noColor || ui.DetectNoColor())
	if opts.jsonOutput {
		return r.RenderJSON(info)
	}
	return r.Render(info)
}

func probeEmbedder(ctx context.Context, a *app) string {
	e, err := embed.NewEmbedder(ctx, a.cfg.Embeddings)
	if err != nil {
		slog.Warn("embedder_probe_failed", slog.String("error", err.Error()))
		return "error"
	}
	defer func() { _ = e.Close() }()
	if !e.Available(ctx) {
		return "offline"
	}
	return "ready"
}

// addQueryStats fills query counters from the metrics database, if any.
func addQueryStats(ctx context.Context, info *ui.StatusInfo, dir string) {
	if dir == "" {
		return
	}
	st, err := telemetry.OpenSQLiteMetricsStore(filepath.Join(dir, telemetry.MetricsFileName))
	if err != nil {
		slog.Debug("metrics_store_unavailable", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = st.Close() }()

	snap, err := st.Summary(ctx, 5, 0)
	if err != nil {
		slog.Debug("metrics_summary_failed", slog.String("error", err.Error()))
		return
	}
	info.TotalQueries = snap.TotalQueries
	if snap.TotalQueries > 0 {
		info.ZeroResultRate = float64(snap.ZeroResultCount) / float64(snap.TotalQueries) * 100
	}
	for _, tc := range snap.TopTerms {
		info.TopQueryTerms = append(info.TopQueryTerms, tc.Term)
	}
}

func embedderModel(provider, model string, dims int) string {
	if provider == string(embed.ProviderStatic) {
		return fmt.Sprintf("static-%d", dims)
	}
	return model
}

func storageLabel(dir string) string {
	if dir == "" {
		return "(in-memory)"
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// dirSize sums regular file sizes under dir.
func dirSize(dir string) int64 {
	if dir == "" {
		return 0
	}
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
