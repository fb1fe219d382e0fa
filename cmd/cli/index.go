package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	vnsconfig "vns/cmd/config"
)

// cliInit loads .env and the node's config file before any command runs, so
// apiAddr() can resolve network.api_addr from config/default.yaml the same
// way vnsd itself does: godotenv first, then viper-backed config.
func cliInit(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	viper.AutomaticEnv()
	env, _ := cmd.Flags().GetString("env")
	vnsconfig.LoadConfig(env)
	return nil
}

// RegisterRoutes attaches the one VNS command group this CLI exposes (§6) —
// register, resolve, transfer, query, each talking to a running vnsd's HTTP
// surface — to the provided root command.
func RegisterRoutes(root *cobra.Command) {
	for _, c := range []*cobra.Command{registerCmd, resolveCmd, transferCmd, queryCmd} {
		c.Flags().String("env", "", "environment overlay to merge on top of config/default.yaml")
		c.PersistentPreRunE = cliInit
	}
	root.AddCommand(registerCmd, resolveCmd, transferCmd, queryCmd)
}
