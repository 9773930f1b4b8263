package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docmemory/internal/memory"
	"github.com/Aman-CERP/docmemory/internal/output"
)

func newCheckCmd(g *globalOptions) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the indexes against the record store",
		Long: `Compare every record with the vector and full-text indexes.

--repair rebuilds missing entries and drops orphans, then checks again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			res, err := a.memory.Check(ctx)
			if err != nil {
				return err
			}
			printCheck(out, res)

			if res.Healthy() || !repair {
				return nil
			}

			fixed, err := a.memory.Repair(ctx)
			if err != nil {
				return err
			}
			out.Newline()
			if fixed.Healthy() {
				out.Successf("Repaired %d issues", len(res.Issues))
				return nil
			}
			printCheck(out, fixed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Repair issues that were found")
	return cmd
}

func printCheck(out *output.Writer, res *memory.CheckResult) {
	if res.Healthy() {
		out.Successf("Checked %d records in %s: no issues", res.Checked, res.Duration.Round(time.Millisecond))
		return
	}
	out.Warningf("Checked %d records: %d issues", res.Checked, len(res.Issues))
	for _, issue := range res.Issues {
		if issue.Details != "" {
			out.Statusf("", "%s %s: %s", issue.Type, issue.ID, issue.Details)
		} else {
			out.Statusf("", "%s %s", issue.Type, issue.ID)
		}
	}
}

func newCompactCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rebuild the vector index without tombstones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.memory.Compact(ctx)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Compacted %d → %d slots (%d removed)",
				res.SlotsBefore, res.SlotsAfter, res.Removed)
			return nil
		},
	}
}
