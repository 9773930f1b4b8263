package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docmemory/internal/backup"
	"github.com/Aman-CERP/docmemory/internal/output"
	"github.com/Aman-CERP/docmemory/internal/ui"
)

func newBackupCmd(g *globalOptions) *cobra.Command {
	var noPrune bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of the storage directory",
		Long: `Write a zip archive of the storage directory to <storage>/backups and
prune old archives beyond backup.keep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// Holding the store open keeps other writers out while files are copied.
			a, err := openApp(ctx, g, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m := backup.NewManager(a.cfg.Storage.Path, a.cfg.Backup.Keep)
			info, err := m.Create(ctx)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			out.Successf("Backup written: %s (%s)", info.Path, ui.FormatBytes(info.Size))

			if noPrune {
				return nil
			}
			removed, err := m.Prune()
			if err != nil {
				return err
			}
			if removed > 0 {
				out.Statusf("", "Pruned %d old backups", removed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "Keep every existing backup")
	cmd.AddCommand(newBackupListCmd(g))
	return cmd
}

func newBackupListCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := backup.NewManager(g.cfg.Storage.Path, g.cfg.Backup.Keep)
			list, err := m.List()
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(list)
			}
			if len(list) == 0 {
				out.Status("", "No backups.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, b := range list {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Name, ui.FormatBytes(b.Size), b.ModTime.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output backups as JSON")
	return cmd
}
