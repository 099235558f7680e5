package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gitvfs/gitvfs"
	"github.com/spf13/cobra"
)

var pushMessage string

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push accumulated edits",
	Long:  "Commit the accumulated change set to the tracked branch as one commit.",
	Args:  cobra.NoArgs,
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().StringVarP(&pushMessage, "message", "m", "gitvfs sync", "commit message")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) (err error) {
	ctx := context.Background()

	vfs, err := openVFS(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := vfs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err := vfs.Push(ctx, gitvfs.PushOptions{
		Message:   pushMessage,
		ParentSHA: vfs.Head(),
	})
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	if result.NoOp {
		fmt.Fprintln(os.Stderr, "Nothing to push.")
		return nil
	}
	fmt.Fprintf(os.Stderr, "Done. Commit: %s\n", result.CommitSHA)
	return nil
}
