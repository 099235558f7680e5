package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gitvfs/gitvfs"
	"github.com/spf13/cobra"
)

var resolveTheirs bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Resolve a conflict",
	Long:  "Close a conflict by keeping the local bytes (default) or adopting the remote side (--theirs).",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveTheirs, "theirs", false, "adopt the remote side")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) (err error) {
	ctx := context.Background()
	path := args[0]

	vfs, err := openVFS(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := vfs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	resolution := gitvfs.ResolveOurs
	if resolveTheirs {
		resolution = gitvfs.ResolveTheirs
	}

	if err := vfs.Resolve(ctx, path, resolution); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Resolved %s\n", path)
	return nil
}
