package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <owner>",
	Short: "List the names owned by owner",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		names, err := newAPIClient().query(ctx, owner)
		if err != nil {
			fail(err)
			return
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
	},
}
