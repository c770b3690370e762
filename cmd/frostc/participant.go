package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/internal/commsnet/httpcomms"
	"github.com/polarsign/frost-ceremony/internal/commsnet/socket"
	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/keystore"
	"github.com/polarsign/frost-ceremony/pkg/participant"
)

// confirmPrompt shows the message and waits for an explicit yes. Binary
// messages are shown as hex so a terminal cannot be tricked by control
// characters.
func confirmPrompt(in *bufio.Reader, out *os.File) func([]byte) error {
	return func(message []byte) error {
		printable := true
		for _, r := range string(message) {
			if !unicode.IsPrint(r) && r != '\n' && r != '\t' {
				printable = false
				break
			}
		}
		if printable {
			fmt.Fprintf(out, "message to sign:\n%s\n", message)
		} else {
			fmt.Fprintf(out, "message to sign (hex):\n%x\n", message)
		}
		fmt.Fprint(out, "sign this message? [y/N] ")
		answer, err := in.ReadString('\n')
		if err != nil {
			return err
		}
		if answer = strings.ToLower(strings.TrimSpace(answer)); answer != "y" && answer != "yes" {
			return fmt.Errorf("declined")
		}
		return nil
	}
}

func newParticipantCmd() *cobra.Command {
	var (
		group   string
		connect string
		server  string
		session string
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Join a signing ceremony as a signer",
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

			ctx := cmd.Context()
			var conn comms.Participant
			switch {
			case connect != "":
				client, err := socket.DialParticipant(ctx, connect)
				if err != nil {
					return err
				}
				defer client.Close()
				conn = client
			case server != "" || g.Server != "":
				base := server
				if base == "" {
					base = g.Server
				}
				if session == "" {
					return fmt.Errorf("--session is required with a relay")
				}
				_, priv, err := store.Identity()
				if err != nil {
					return err
				}
				conn = httpcomms.NewParticipant(httpcomms.NewClient(base, session, httpcomms.WithIdentity(priv)))
			default:
				return fmt.Errorf("either --connect or --server is required")
			}

			cfg := participant.Config{
				Suite:      frost.NewSuite(g.Network),
				KeyPackage: g.KeyPackage,
				Logger:     log,
			}
			if !yes {
				cfg.Confirm = confirmPrompt(bufio.NewReader(cmd.InOrStdin()), os.Stderr)
			}
			p, err := participant.New(cfg)
			if err != nil {
				return err
			}
			if err := p.Sign(ctx, conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature share sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "group to sign with")
	cmd.Flags().StringVar(&connect, "connect", "", "coordinator TCP address")
	cmd.Flags().StringVar(&server, "server", "", "relay base URL (defaults to the group's server)")
	cmd.Flags().StringVar(&session, "session", "", "relay session id")
	cmd.Flags().BoolVar(&yes, "yes", false, "sign without prompting")
	cmd.MarkFlagRequired("group")
	return cmd
}
