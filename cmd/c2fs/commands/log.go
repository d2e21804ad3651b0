package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"c2fs/pkg/meta"
	"c2fs/pkg/types"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [REF]",
	Short: "Show indexed commits, or the moves of one ref (requires meta.driver)",
	Long: `Without REF, list the most recent indexed commits of all pools.
With REF (e.g. refs/heads/master or refs/NAME), show where it points and its move history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if C2.Meta == nil {
			return fmt.Errorf("commit index disabled (set meta.driver)")
		}
		if len(args) == 0 {
			return printCommits(cmd)
		}
		return printRefHistory(cmd, args[0])
	},
}

func printCommits(cmd *cobra.Command) error {
	commits, err := C2.Meta.ListCommits(cmd.Context(), logLimit)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No commits yet.")
		return nil
	}
	for _, c := range commits {
		printEntry(cmd.OutOrStdout(), c.Hash, time.Unix(0, c.Timestamp), c.Message)
	}
	return nil
}

func printRefHistory(cmd *cobra.Command, ref string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	tip, err := C2.Meta.GetRef(ctx, ref)
	switch {
	case errors.Is(err, meta.ErrRefNotFound):
		fmt.Fprintf(out, "%s (not present)\n\n", ref)
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "%s -> %s (version %d)\n\n", ref, tip.CommitHash, tip.Version)
	}

	logs, err := C2.Meta.History(ctx, ref, logLimit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Fprintln(out, "No commits yet.")
		return nil
	}
	for _, l := range logs {
		if l.New == "" {
			fmt.Fprintf(out, "removed (was %s)\nDate:   %s\n\n", l.Old, l.CreatedAt.Format(time.RFC3339))
			continue
		}
		printEntry(out, l.New, l.CreatedAt, refLogMessage(cmd, l))
	}
	return nil
}

// refLogMessage 优先取 commit 表里的 message，其次是流水里的 detail
func refLogMessage(cmd *cobra.Command, l meta.RefLog) string {
	if id, err := types.ParseHash(l.New); err == nil {
		if c, err := C2.Meta.GetCommit(cmd.Context(), id); err == nil {
			return c.Message
		}
	}
	var detail struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(l.Detail, &detail); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Unreadable reflog detail for %s: %v\n", l.New, err)
		return ""
	}
	return detail.Message
}

func printEntry(w io.Writer, hash string, at time.Time, msg string) {
	fmt.Fprintf(w, "commit %s\nDate:   %s\n\n    %s\n\n", hash, at.Format(time.RFC3339), msg)
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "l", 20, "max entries")
	rootCmd.AddCommand(logCmd)
}
