package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the tracked branch",
	Long:  "Fetch a snapshot of the tracked branch and reconcile it against local edits.",
	Args:  cobra.NoArgs,
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) (err error) {
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

	result, err := vfs.Pull(ctx)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done. Head: %s, fetched %d file(s)\n", vfs.Head(), len(result.FetchedPaths))
	for _, conflict := range result.Conflicts {
		fmt.Fprintf(os.Stderr, "CONFLICT: %s\n", conflict.Path)
	}
	return nil
}
