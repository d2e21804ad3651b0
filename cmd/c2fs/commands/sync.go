package commands

import (
	"fmt"

	"c2fs/pkg/dirops"
	"c2fs/pkg/ignore"

	"github.com/spf13/cobra"
)

var syncNoIgnore bool

var syncCmd = &cobra.Command{
	Use:   "sync SRC DST",
	Short: "Make DST identical to SRC",
	Long:  `Recursively synchronize DST with SRC: new entries are copied, missing ones removed, changed files overwritten.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := C2.Factory.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		dst, err := C2.Factory.ResolveWritable(ctx, args[1])
		if err != nil {
			return err
		}

		counts := map[dirops.Action]int{}
		opts, err := transferOptions(ctx, cmd, src, syncNoIgnore, counts)
		if err != nil {
			return err
		}
		if err := dirops.SynchronizeDirectories(ctx, dst, src, opts...); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Synchronized: %d copied, %d removed, %d unchanged.\n",
			counts[dirops.ActionCopy], counts[dirops.ActionRemove], counts[dirops.ActionSkip])
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncNoIgnore, "no-ignore", false, "do not apply "+ignore.IgnoreFile+" rules")
	rootCmd.AddCommand(syncCmd)
}
