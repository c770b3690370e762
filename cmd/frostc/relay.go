package main

import (
	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/internal/relay"
)

func newRelayCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a ceremony relay server",
		Long: "Serve the HTTP relay that dkg, coordinator and participant " +
			"talk to. The relay stores only opaque ceremony payloads and " +
			"never sees key material.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			log.Info().Str("listen", listen).Msg("starting relay")
			return relay.NewServer(log).Start(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":2744", "address to serve on")
	return cmd
}
