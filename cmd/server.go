package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ehn-dcc-development/ehc-verify/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the verification server",
	Run: func(cmd *cobra.Command, args []string) {
		err := viper.BindPFlags(cmd.Flags())
		if err != nil {
			exitWithError(err)
		}

		err = readConfig()
		if err != nil {
			exitWithError(err)
		}

		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		store, err := buildStore(logger)
		if err != nil {
			exitWithError(err)
		}

		config := &server.Configuration{
			ListenAddress: viper.GetString("listen-address"),
			ListenPort:    viper.GetString("listen-port"),
		}

		err = server.Run(config, store, logger)
		if err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	setServerFlags(serverCmd)
}

func setServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.SortFlags = false

	flags.String("config", "", "path to configuration file (JSON, TOML, YAML or INI)")
	flags.String("listen-address", "localhost", "address at which to listen")
	flags.String("listen-port", "4003", "port at which to listen")

	flags.String("certs-file", "", "trust list in CBOR format; if not given it is downloaded")
	flags.String("certs-from", "DE,AT", "comma separated trust list sources to download; entries from a later source overwrite earlier ones")
}
