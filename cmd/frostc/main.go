// frostc is the ceremony client: it manages the local keystore, runs
// distributed key generation, and drives or joins signing ceremonies.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	keystorePath string
	verbose      bool
)

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func main() {
	root := &cobra.Command{
		Use:           "frostc",
		Short:         "FROST threshold signature ceremony client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&keystorePath, "keystore", defaultKeystorePath(), "path to the keystore file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newContactsCmd(),
		newGroupsCmd(),
		newDealerCmd(),
		newDKGCmd(),
		newCoordinatorCmd(),
		newParticipantCmd(),
		newRelayCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultKeystorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/frostc/keystore.yaml"
	}
	return "keystore.yaml"
}
