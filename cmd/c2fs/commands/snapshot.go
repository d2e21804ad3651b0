package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage read-only snapshots of a pool",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create NAME POOL",
	Short: "Point snapshot NAME at the current master",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := poolRoot(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		id, err := root.CreateSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Snapshot %s -> %s\n", args[0], id)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list POOL",
	Short: "List snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		root, err := poolRoot(ctx, args[0])
		if err != nil {
			return err
		}
		names, err := root.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			id, _, err := root.GetSnapshotCommitID(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, name)
		}
		return nil
	},
}

var snapshotRmCmd = &cobra.Command{
	Use:   "rm NAME POOL",
	Short: "Remove a snapshot (objects are freed by the next gc)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := poolRoot(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if err := root.RemoveSnapshot(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed snapshot %s\n", args[0])
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd, snapshotRmCmd)
	rootCmd.AddCommand(snapshotCmd)
}
