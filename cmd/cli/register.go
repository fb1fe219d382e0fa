// cmd/cli/register.go – `register` command
// -----------------------------------------------------------------------------
// Mints a signed Registration locally (computing proof of work unless
// --no-pow) and submits it to vnsd.
// -----------------------------------------------------------------------------

package cli

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vns/core"
)

func parseRecordFlags(raw []string) ([]core.Record, error) {
	records := make([]core.Record, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --record %q, want kind=value", r)
		}
		records = append(records, core.Record{Type: core.RecordKind(strings.ToUpper(parts[0])), Value: parts[1]})
	}
	return records, nil
}

var registerCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register or update a name in the .vfs namespace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := core.NormalizeName(args[0])

		rawRecords, _ := cmd.Flags().GetStringArray("record")
		records, err := parseRecordFlags(rawRecords)
		if err != nil {
			fail(&apiError{Detail: err.Error()})
			return
		}
		noPoW, _ := cmd.Flags().GetBool("no-pow")
		keyfile, _ := cmd.Flags().GetString("keyfile")

		priv, err := loadOrCreateIdentity(identityKeyfile(keyfile))
		if err != nil {
			fail(err)
			return
		}
		owner := ownerID(priv)

		now := time.Now()
		reg := core.Registration{
			Name:        name,
			Owner:       owner,
			Records:     records,
			TimestampMs: now.UnixMilli(),
			ExpiresMs:   now.Add(core.LeasePeriod).UnixMilli(),
			PublicKey:   []byte(priv.Public().(ed25519.PublicKey)),
		}

		if noPoW {
			reg.Nonce = "0"
		} else {
			nonce, err := core.ComputeProofOfWork(reg.Name, reg.Owner, core.DefaultPoWDifficulty, 10_000_000)
			if err != nil {
				fail(err)
				return
			}
			reg.Nonce = nonce
		}
		reg.Signature = core.Sign(priv, reg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		contentID, err := newAPIClient().register(ctx, reg)
		if err != nil {
			fail(err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s content_id=%s\n", name, contentID)
	},
}

func init() {
	registerCmd.Flags().StringArray("record", nil, "attach a record as kind=value (repeatable)")
	registerCmd.Flags().Bool("no-pow", false, "skip local proof-of-work computation (requires vnsd run with VNS_ALLOW_NO_POW=true or admission.allow_no_pow)")
	registerCmd.Flags().String("keyfile", "", "path to the Ed25519 identity keyfile (default ~/.vns/identity.key)")
}
