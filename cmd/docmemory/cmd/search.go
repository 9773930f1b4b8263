package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/output"
	"github.com/Aman-CERP/docmemory/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	searchType string // semantic, keyword, hybrid, fulltext
	limit      int
	noRerank   bool
	docType    string
	tags       []string
	source     string
	jsonOutput bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored documents",
		Long: `Search stored documents.

Hybrid search (default) combines semantic similarity and keyword
scores by weighted sum (search.semantic_weight, search.keyword_weight).
Filters apply to semantic search.

Examples:
  docmemory search "quarterly revenue"
  docmemory search "onboarding checklist" --type keyword --limit 5
  docmemory search "incident review" --type semantic --tag ops --doc-type md
  docmemory search "release notes" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.searchType, "type", "t", "hybrid", "Search type: hybrid, semantic, keyword, fulltext")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default: search.default_limit)")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Rank semantic results by similarity only")
	cmd.Flags().StringVar(&opts.docType, "doc-type", "", "Filter by document type (e.g. md, docx)")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Filter by tag (any of, repeatable)")
	cmd.Flags().StringVar(&opts.source, "source", "", "Filter by source file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return docerrors.New(docerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	searchType := search.ParseType(opts.searchType)
	needsEmbedder := searchType == search.TypeSemantic || searchType == search.TypeHybrid

	a, err := openApp(ctx, g, openOptions{embedder: needsEmbedder, metrics: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	slog.Info("search_started",
		slog.String("query", query),
		slog.String("type", string(searchType)),
		slog.Int("limit", opts.limit))

	resp, err := a.engine.Search(ctx, search.Request{
		Query: query,
		Type:  searchType,
		Limit: opts.limit,
		Filters: search.Filters{
			DocumentType: opts.docType,
			Tags:         opts.tags,
			SourceFile:   opts.source,
		},
		Rerank: !opts.noRerank,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(resp)
	}

	out.Statusf("🔍", "%d results for %q (%s, %s)", len(resp.Hits), query, resp.Type, resp.Duration.Round(time.Microsecond))
	out.Newline()
	out.Hits(resp.Hits)
	return nil
}

// printHits prints hits as text or JSON under an optional header.
func printHits(cmd *cobra.Command, hits []search.Hit, jsonOutput bool, header string) error {
	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(hits)
	}
	if header != "" {
		out.Statusf("", "%s (%d)", header, len(hits))
		out.Newline()
	}
	out.Hits(hits)
	return nil
}
