package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/output"
	"github.com/Aman-CERP/docmemory/internal/store"
)

// recordView is the JSON shape of a record. Embeddings are omitted.
type recordView struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	SourceFile   string         `json:"source_file"`
	DocumentType string         `json:"document_type"`
	Timestamp    time.Time      `json:"timestamp"`
	Tags         []string       `json:"tags"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	PageNumbers  []int          `json:"page_numbers,omitempty"`
	Dimensions   int            `json:"embedding_dimensions"`
}

func viewOf(rec *store.Record) recordView {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return recordView{
		ID:           rec.ID,
		Title:        rec.Title,
		Content:      rec.Content,
		SourceFile:   rec.SourceFile,
		DocumentType: rec.DocumentType,
		Timestamp:    rec.Timestamp,
		Tags:         tags,
		Metadata:     rec.Metadata,
		Summary:      rec.Summary,
		PageNumbers:  rec.PageNumbers,
		Dimensions:   len(rec.Embedding),
	}
}

func newGetCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rec, ok, err := a.memory.Retrieve(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return docerrors.NotFoundError(args[0])
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(viewOf(rec))
			}
			out.Record(rec)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the record as JSON")
	return cmd
}

func newListCmd(g *globalOptions) *cobra.Command {
	var (
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			recs, err := a.memory.List(ctx, limit, offset)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				views := make([]recordView, len(recs))
				for i, rec := range recs {
					views[i] = viewOf(rec)
				}
				return out.JSON(views)
			}
			out.Records(recs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output records as JSON")
	return cmd
}

func newDeleteCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			var missing []string
			for _, id := range args {
				ok, err := a.memory.Delete(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					missing = append(missing, id)
					continue
				}
				out.Successf("Deleted %s", id)
			}
			if len(missing) == 1 {
				return docerrors.NotFoundError(missing[0])
			}
			if len(missing) > 1 {
				return docerrors.New(docerrors.ErrCodeNotFound,
					fmt.Sprintf("%d records not found: %v", len(missing), missing), nil)
			}
			return nil
		},
	}
}

func newRelatedCmd(g *globalOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "related <id>",
		Short: "Show records related to a record",
		Long: `Show records related to a record.

Relatedness is embedding similarity boosted by shared tags and a shared
source file. The record itself is never returned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{metrics: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if _, ok, err := a.memory.Retrieve(ctx, args[0]); err != nil {
				return err
			} else if !ok {
				return docerrors.NotFoundError(args[0])
			}

			hits, err := a.engine.RelatedHits(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printHits(cmd, hits, jsonOutput, "Related to "+args[0])
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of related records")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func newTagsCmd(g *globalOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "tags <tag>...",
		Short: "Find records carrying any of the tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{metrics: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			hits, err := a.engine.TagHits(ctx, args, limit)
			if err != nil {
				return err
			}
			return printHits(cmd, hits, jsonOutput, "")
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default: search.default_limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func newCountCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.memory.Count(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}
