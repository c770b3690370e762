package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/internal/commsnet/httpcomms"
	"github.com/polarsign/frost-ceremony/internal/commsnet/socket"
	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/coordinator"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/keystore"
)

func readMessage(message, messageFile string) ([]byte, error) {
	switch {
	case message != "" && messageFile != "":
		return nil, fmt.Errorf("pass either --message or --message-file, not both")
	case message != "":
		return []byte(message), nil
	case messageFile != "":
		return os.ReadFile(messageFile)
	default:
		return nil, fmt.Errorf("a message is required")
	}
}

func newCoordinatorCmd() *cobra.Command {
	var (
		group         string
		message       string
		messageFile   string
		numSigners    uint16
		listen        string
		server        string
		session       string
		signatureFile string
	)
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Coordinate a signing ceremony",
		Long: "Run the coordinator side of a signing ceremony, either " +
			"listening on a TCP socket (--listen) or through a relay " +
			"(--server). The signature is printed as hex, or written raw " +
			"with --signature-file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			g, err := store.Group(group)
			if err != nil {
				return err
			}
			msg, err := readMessage(message, messageFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var conn comms.Coordinator
			switch {
			case listen != "":
				srv, err := socket.ListenCoordinator(listen, log)
				if err != nil {
					return err
				}
				defer srv.Close()
				fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", srv.Addr())
				conn = srv
			case server != "" || g.Server != "":
				base := server
				if base == "" {
					base = g.Server
				}
				if session == "" {
					if len(g.Participants) == 0 {
						return fmt.Errorf("group %q has no participant bindings, relay sessions need them", group)
					}
					session, err = httpcomms.CreateSigningSession(ctx, base, g.Participants)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "session: %s\n", session)
				}
				conn = httpcomms.NewCoordinator(httpcomms.NewClient(base, session))
			default:
				return fmt.Errorf("either --listen or --server is required")
			}

			if numSigners == 0 {
				numSigners = g.PublicKeyPackage.MinSigners
			}
			coord, err := coordinator.New(coordinator.Config{
				Suite:            frost.NewSuite(g.Network),
				PublicKeyPackage: g.PublicKeyPackage,
				Messages:         [][]byte{msg},
				NumSigners:       numSigners,
				Logger:           log,
			})
			if err != nil {
				return err
			}
			sig, err := coord.Run(ctx, conn)
			if err != nil {
				return err
			}

			if signatureFile != "" {
				raw, err := sig.Serialize()
				if err != nil {
					return err
				}
				if err := os.WriteFile(signatureFile, raw, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signature written to %s\n", signatureFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "group to sign with")
	cmd.Flags().StringVar(&message, "message", "", "message to sign")
	cmd.Flags().StringVar(&messageFile, "message-file", "", "file holding the message to sign")
	cmd.Flags().Uint16Var(&numSigners, "signers", 0, "number of signers (defaults to the group threshold)")
	cmd.Flags().StringVar(&listen, "listen", "", "TCP address to accept participants on")
	cmd.Flags().StringVar(&server, "server", "", "relay base URL (defaults to the group's server)")
	cmd.Flags().StringVar(&session, "session", "", "existing relay session id")
	cmd.Flags().StringVar(&signatureFile, "signature-file", "", "write the raw signature here instead of printing hex")
	cmd.MarkFlagRequired("group")
	return cmd
}
