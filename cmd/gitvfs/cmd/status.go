package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes",
	Long:  "Show the change set the next push would commit, plus open conflicts.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) (err error) {
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

	fmt.Printf("head: %s\n", vfs.Head())

	for _, path := range vfs.ConflictPaths() {
		fmt.Printf("conflict: %s\n", path)
	}

	changes, err := vfs.ChangeSet(ctx)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(os.Stderr, "Working tree clean.")
		return nil
	}
	for _, change := range changes {
		fmt.Printf("%-7s %s\n", change.Action, change.Path)
	}
	return nil
}
