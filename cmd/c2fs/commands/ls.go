package commands

import (
	"c2fs/pkg/dirops"
	"c2fs/pkg/printer"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls DESC",
	Short: "List one directory level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := C2.Factory.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		infos, err := dirops.ListDirectory(cmd.Context(), h)
		if err != nil {
			return err
		}
		return printer.PrintListing(cmd.OutOrStdout(), infos)
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
