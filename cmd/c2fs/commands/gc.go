package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	gcDryRun bool
	gcForce  bool
)

var gcCmd = &cobra.Command{
	Use:   "gc [-n] [-f] POOL",
	Short: "Remove objects unreachable from master and snapshots",
	Long: `Mark every object reachable from master and all snapshots, then delete the rest.
With -n only the mark phase runs and nothing is deleted.
Missing or corrupt objects abort the removal unless -f is given.
Do not write to the pool while gc runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		root, err := poolRoot(ctx, args[0])
		if err != nil {
			return err
		}
		col, err := root.NewCollector(ctx)
		if err != nil {
			return err
		}

		// 阶段一: 标记
		for {
			more, err := col.CheckObject(ctx)
			if err != nil {
				return fmt.Errorf("gc mark failed: %w", err)
			}
			if !more {
				break
			}
		}
		fmt.Fprintf(out, "Objects to keep: %d\n", col.NumObjectsToKeep())

		if n := col.NumErrors(); n > 0 {
			fmt.Fprintf(out, "⚠️  %d missing or corrupt objects\n", n)
			if !gcForce && !gcDryRun {
				return fmt.Errorf("refusing to remove objects from an inconsistent pool (use -f to force)")
			}
		}

		if gcDryRun {
			garbage, err := col.Garbage(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Objects to remove: %d (dry run)\n", len(garbage))
			return nil
		}

		// 阶段二: 删除
		for {
			more, err := col.RemoveGarbageObjects(ctx)
			if err != nil {
				return fmt.Errorf("gc remove failed: %w", err)
			}
			if !more {
				break
			}
		}
		fmt.Fprintf(out, "✅ Removed %d objects.\n", col.NumObjectsRemoved())
		return nil
	},
}

func init() {
	gcCmd.Flags().BoolVarP(&gcDryRun, "dry-run", "n", false, "mark only, do not delete")
	gcCmd.Flags().BoolVarP(&gcForce, "force", "f", false, "remove garbage even if objects are missing")
	rootCmd.AddCommand(gcCmd)
}
