package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/extract"
	"github.com/Aman-CERP/docmemory/internal/ingest"
	"github.com/Aman-CERP/docmemory/internal/output"
	"github.com/Aman-CERP/docmemory/internal/ui"
)

type addOptions struct {
	title   string
	tags    []string
	meta    []string
	plain   bool
	workers int
}

func newAddCmd(g *globalOptions) *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add <file|dir>...",
		Short: "Ingest documents into memory",
		Long: `Extract, chunk and embed documents and store one record per chunk.

Directories are walked recursively; hidden entries and unsupported
formats are skipped. A file that fails does not stop the others.

Examples:
  docmemory add notes.md report.docx
  docmemory add ./inbox --tags work,q3
  docmemory add minutes.txt --meta project=atlas --meta owner=ops`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), cmd, g, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Title for every record (default: document title or file name)")
	cmd.Flags().StringSliceVarP(&opts.tags, "tags", "t", nil, "Tags to attach (comma separated or repeated)")
	cmd.Flags().StringArrayVarP(&opts.meta, "meta", "m", nil, "Metadata entry key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no TUI)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent files (default: ingest.workers)")

	return cmd
}

func runAdd(ctx context.Context, cmd *cobra.Command, g *globalOptions, args []string, opts addOptions) error {
	meta, err := parseMeta(opts.meta)
	if err != nil {
		return err
	}

	ext := extract.New()
	storageDir, _ := filepath.Abs(g.cfg.Storage.Path)
	paths, err := collectFiles(args, ext, storageDir)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	if len(paths) == 0 {
		out.Warning("No supported files found")
		return nil
	}

	a, err := openApp(ctx, g, openOptions{embedder: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(g.noColor || ui.DetectNoColor()),
		ui.WithStorageDir(a.cfg.Storage.Path),
	))

	workers := opts.workers
	if workers <= 0 {
		workers = a.cfg.Ingest.Workers
	}
	pipeline, err := ingest.New(ingest.Dependencies{
		Memory:    a.memory,
		Embedder:  a.embedder,
		Extractor: ext,
		Chunker:   a.chunker(),
		Renderer:  renderer,
	}, ingest.Config{
		Workers:         workers,
		BatchSize:       a.cfg.Embeddings.BatchSize,
		EmbedderBackend: a.cfg.Embeddings.Provider,
	})
	if err != nil {
		return err
	}

	if err := renderer.Start(ctx); err != nil {
		return err
	}
	results, err := pipeline.ProcessBatch(ctx, paths, ingest.Options{
		Title:    opts.title,
		Tags:     opts.tags,
		Metadata: meta,
	})
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	var failed []string
	for _, path := range paths {
		if r := results[path]; r.Err != nil {
			failed = append(failed, path)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed: %s", len(failed), len(paths), strings.Join(failed, ", "))
	}
	return nil
}

// parseMeta turns key=value pairs into record metadata.
func parseMeta(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, docerrors.ValidationError(fmt.Sprintf("invalid metadata %q", entry), nil).
				WithSuggestion("Use --meta key=value")
		}
		meta[key] = value
	}
	return meta, nil
}

// collectFiles expands args into absolute file paths. Files named
// explicitly are kept even when unsupported so the failure is reported;
// directories contribute only supported, non-hidden files outside skipDir.
func collectFiles(args []string, ext *extract.Extractor, skipDir string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			add(abs)
			continue
		}

		var found []string
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			hidden := path != abs && strings.HasPrefix(d.Name(), ".")
			if d.IsDir() {
				if hidden || path == skipDir {
					return filepath.SkipDir
				}
				return nil
			}
			if !hidden && ext.Supports(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", abs, err)
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return paths, nil
}
