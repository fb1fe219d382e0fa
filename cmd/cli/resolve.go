package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vns/core"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Resolve a name's current records",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := core.NormalizeName(args[0])

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		found, records, owner, expires, err := newAPIClient().resolve(ctx, name)
		if err != nil {
			fail(err)
			return
		}
		if !found {
			fail(&apiError{Kind: "NotFound", Detail: "not found: " + name})
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s owner=%s expires=%d\n", name, owner, expires)
		for _, r := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s=%s ttl=%d\n", r.Type, r.Value, r.TTL)
		}
	},
}
