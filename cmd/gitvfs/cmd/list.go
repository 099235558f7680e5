package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked paths",
	Long:  "List the visible paths of the storage root (tombstones hidden).",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
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

	for _, path := range vfs.ListPaths() {
		fmt.Println(path)
	}
	return nil
}
