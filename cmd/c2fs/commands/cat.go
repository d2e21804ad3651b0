package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat DESC NAME",
	Short: "Write a file's content to stdout",
	Long:  `Read file NAME inside the directory named by DESC and write it to stdout. Binary content can be redirected with > file.bin.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := C2.Factory.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := h.GetFileByName(cmd.Context(), args[1])
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
