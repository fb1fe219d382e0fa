package cli

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vns/core"
)

var transferCmd = &cobra.Command{
	Use:   "transfer <name> <new-owner>",
	Short: "Transfer a name to a new owner",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name := core.NormalizeName(args[0])
		newOwner := args[1]

		keyfile, _ := cmd.Flags().GetString("keyfile")
		priv, err := loadOrCreateIdentity(identityKeyfile(keyfile))
		if err != nil {
			fail(err)
			return
		}
		currentOwner := ownerID(priv)

		nowMs := time.Now().UnixMilli()
		sig := ed25519.Sign(priv, core.TransferAuthBytes(name, newOwner, nowMs))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		contentID, version, err := newAPIClient().transfer(ctx, name, newOwner, sig, currentOwner, nowMs)
		if err != nil {
			fail(err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "transferred %s -> %s content_id=%s version=%d\n", name, newOwner, contentID, version)
	},
}

func init() {
	transferCmd.Flags().String("keyfile", "", "path to the Ed25519 identity keyfile (default ~/.vns/identity.key)")
}
