package commands

import (
	"fmt"

	"c2fs/pkg/dirops"
	"c2fs/pkg/vfs"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm DESC",
	Short: "Remove everything inside a directory",
	Long:  `Recursively delete every entry inside DESC. The directory itself is kept.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := C2.Factory.ResolveWritable(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		count := 0
		err = dirops.RemoveDirectoryContent(cmd.Context(), h, dirops.WithProgress(func(_ dirops.Action, p string, _ vfs.Info) {
			count++
		}))
		if err != nil {
			return fmt.Errorf("rm failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed %d entries.\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
