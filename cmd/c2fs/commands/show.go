package commands

import (
	"fmt"

	"c2fs/pkg/printer"
	"c2fs/pkg/types"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show POOL [HASH|master]",
	Short: "Print the structure of a pool object",
	Long:  `Print a commit, tree or blob stored in POOL. HASH may be abbreviated to at least 4 hex digits; the default is master.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		root, err := poolRoot(ctx, args[0])
		if err != nil {
			return err
		}

		var id types.Hash
		if len(args) == 1 || args[1] == "master" {
			id, err = root.GetMasterCommitID(ctx)
			if err != nil {
				return err
			}
			if id.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "No commits yet.")
				return nil
			}
		} else {
			id, err = root.Store().ExpandHash(ctx, types.HashPrefix(args[1]))
			if err != nil {
				return fmt.Errorf("invalid object argument '%s': %w", args[1], err)
			}
		}

		obj, err := root.Store().Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to retrieve object %s: %w", id, err)
		}
		return printer.PrintObject(cmd.OutOrStdout(), obj)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
