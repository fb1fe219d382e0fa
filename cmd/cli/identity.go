// cmd/cli/identity.go – local Ed25519 identity for the VNS CLI
// -----------------------------------------------------------------------------
// Every register/transfer signed by this CLI needs a stable Ed25519 keypair.
// loadOrCreateIdentity loads one from a keyfile, generating and persisting a
// fresh pair on first use — a single raw Ed25519 pair rather than an
// encrypted multi-account keystore, since the core has no on-chain account
// model (§1 Non-goals).
// -----------------------------------------------------------------------------

package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"

	"vns/pkg/utils"
)

// identityKeyfile resolves the path to the local identity keyfile: --keyfile,
// else VNS_KEYFILE, else ~/.vns/identity.key.
func identityKeyfile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := utils.EnvOrDefault("VNS_KEYFILE", ""); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".vns", "identity.key")
}

// loadOrCreateIdentity reads a hex-encoded Ed25519 private key from path,
// generating and persisting a fresh one if the file does not exist.
func loadOrCreateIdentity(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		priv, decErr := hex.DecodeString(string(raw))
		if decErr != nil || len(priv) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity: %s does not hold a valid Ed25519 key", path)
		}
		return ed25519.PrivateKey(priv), nil
	}
	if !os.IsNotExist(err) {
		return nil, utils.Wrap(err, "read identity keyfile")
	}

	_, priv, genErr := ed25519.GenerateKey(nil)
	if genErr != nil {
		return nil, utils.Wrap(genErr, "generate identity key")
	}
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o700); mkErr != nil {
		return nil, utils.Wrap(mkErr, "create identity keyfile dir")
	}
	if writeErr := os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0o600); writeErr != nil {
		return nil, utils.Wrap(writeErr, "write identity keyfile")
	}
	return priv, nil
}

// ownerID derives the stable owner string the CLI signs registrations under:
// the base58-encoded Ed25519 public key, the same encoding multihash/CIDv0
// content identifiers use, so an owner string and a content identifier are
// visually distinguishable at a glance from the same alphabet family.
func ownerID(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}
