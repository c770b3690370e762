package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/dealer"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/keystore"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

func newDealerCmd() *cobra.Command {
	var (
		minSigners uint16
		maxSigners uint16
		group      string
		network    string
		outDir     string
	)
	cmd := &cobra.Command{
		Use:   "dealer",
		Short: "Generate a group with a trusted dealer",
		Long: "Generate a threshold group centrally and write one keystore per " +
			"participant. The dealer machine sees the group secret; prefer " +
			"'frostc dkg' when the participants can run a ceremony.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := dealer.Deal(nil, minSigners, maxSigners)
			if err != nil {
				return err
			}
			ids := party.Sequential(int(maxSigners))

			// Every participant gets a fresh communication identity; the
			// group binds all of them so relay sessions can authenticate.
			stores := make(map[party.ID]*keystore.Store, len(ids))
			members := make(map[comms.PubKey]party.ID, len(ids))
			for _, id := range ids {
				path := filepath.Join(outDir, fmt.Sprintf("participant-%s.yaml", id))
				store, err := keystore.Load(path)
				if err != nil {
					return err
				}
				if err := store.GenerateIdentity(nil); err != nil {
					return err
				}
				pub, _, err := store.Identity()
				if err != nil {
					return err
				}
				stores[id] = store
				members[pub] = id
			}
			for _, id := range ids {
				g, err := out.Group(id, group, network, "", members)
				if err != nil {
					return err
				}
				if err := stores[id].AddGroup(g); err != nil {
					return err
				}
				if err := stores[id].Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n",
					filepath.Join(outDir, fmt.Sprintf("participant-%s.yaml", id)))
			}
			return nil
		},
	}
	cmd.Flags().Uint16Var(&minSigners, "min", 2, "signing threshold")
	cmd.Flags().Uint16Var(&maxSigners, "max", 3, "group size")
	cmd.Flags().StringVar(&group, "group", "", "group name")
	cmd.Flags().StringVar(&network, "network", frost.NetworkTestnet, "network identifier")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for the participant keystores")
	cmd.MarkFlagRequired("group")
	return cmd
}
