package commands

import (
	"context"
	"fmt"

	"c2fs/pkg/dirops"
	"c2fs/pkg/ignore"
	"c2fs/pkg/vfs"

	"github.com/spf13/cobra"
)

var (
	cpRecursive bool
	cpNoIgnore  bool
)

// transferOptions 构造忽略规则与进度输出
func transferOptions(ctx context.Context, cmd *cobra.Command, src vfs.DirectoryHandler, noIgnore bool, counts map[dirops.Action]int) ([]dirops.Option, error) {
	opts := []dirops.Option{
		dirops.WithProgress(func(a dirops.Action, p string, info vfs.Info) {
			counts[a]++
			if a != dirops.ActionSkip {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", a, p)
			}
		}),
	}
	if !noIgnore {
		m, err := ignore.NewMatcher(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", ignore.IgnoreFile, err)
		}
		opts = append(opts, dirops.WithMatcher(m))
	}
	return opts, nil
}

var cpCmd = &cobra.Command{
	Use:   "cp [-r] SRC DST",
	Short: "Copy the content of one directory into another",
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
		opts, err := transferOptions(ctx, cmd, src, cpNoIgnore, counts)
		if err != nil {
			return err
		}
		if err := dirops.CopyDirectory(ctx, dst, src, cpRecursive, opts...); err != nil {
			return fmt.Errorf("cp failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Copied %d entries.\n", counts[dirops.ActionCopy])
		return nil
	},
}

func init() {
	cpCmd.Flags().BoolVarP(&cpRecursive, "recursive", "r", false, "copy subdirectories")
	cpCmd.Flags().BoolVar(&cpNoIgnore, "no-ignore", false, "do not apply "+ignore.IgnoreFile+" rules")
	rootCmd.AddCommand(cpCmd)
}
