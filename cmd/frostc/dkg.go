package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/internal/commsnet/httpcomms"
	"github.com/polarsign/frost-ceremony/pkg/dkg"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/keystore"
)

func newDKGCmd() *cobra.Command {
	var (
		server     string
		session    string
		minSigners uint16
		maxSigners uint16
		group      string
		network    string
	)
	cmd := &cobra.Command{
		Use:   "dkg",
		Short: "Run distributed key generation through a relay",
		Long: "Join a key generation session on the relay and store the " +
			"resulting group. Whoever creates the session passes --max; " +
			"everyone else only needs the session id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			_, priv, err := store.Identity()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if session == "" {
				if maxSigners == 0 {
					return fmt.Errorf("either --session or --max is required")
				}
				session, err = httpcomms.CreateKeygenSession(ctx, server, maxSigners)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session: %s\n", session)
			}

			conn := httpcomms.NewDKG(httpcomms.NewClient(server, session, httpcomms.WithIdentity(priv)))
			kg, err := dkg.New(dkg.Config{
				Suite:      frost.NewSuite(network),
				MinSigners: minSigners,
				Logger:     log,
			})
			if err != nil {
				return err
			}
			res, err := kg.Run(ctx, conn)
			if err != nil {
				return err
			}

			err = store.AddGroup(keystore.Group{
				Name:             group,
				Network:          network,
				Server:           server,
				KeyPackage:       res.KeyPackage,
				PublicKeyPackage: res.PublicKeyPackage,
				Participants:     res.PubKeyMap,
			})
			if err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			groupKey, err := res.PublicKeyPackage.VerifyingKey.MarshalBinary()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %q stored, key %x, participant %s\n",
				group, groupKey, res.KeyPackage.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "relay base URL")
	cmd.Flags().StringVar(&session, "session", "", "existing session id to join")
	cmd.Flags().Uint16Var(&minSigners, "min", 0, "signing threshold")
	cmd.Flags().Uint16Var(&maxSigners, "max", 0, "group size (creates a session)")
	cmd.Flags().StringVar(&group, "group", "", "name to store the group under")
	cmd.Flags().StringVar(&network, "network", frost.NetworkTestnet, "network identifier")
	cmd.MarkFlagRequired("server")
	cmd.MarkFlagRequired("min")
	cmd.MarkFlagRequired("group")
	return cmd
}
