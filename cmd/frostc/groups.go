package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/pkg/keystore"
)

func newGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect stored threshold groups",
	}
	cmd.AddCommand(newGroupsListCmd(), newGroupsShowCmd())
	return cmd
}

func newGroupsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List group names",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			for _, name := range store.GroupNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newGroupsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one group's parameters and membership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			g, err := store.Group(args[0])
			if err != nil {
				return err
			}
			pub := g.PublicKeyPackage
			key, err := pub.VerifyingKey.MarshalBinary()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "group:        %s\n", g.Name)
			fmt.Fprintf(out, "network:      %s\n", g.Network)
			fmt.Fprintf(out, "threshold:    %d of %d\n", pub.MinSigners, pub.MaxSigners)
			fmt.Fprintf(out, "group key:    %x\n", key)
			fmt.Fprintf(out, "our id:       %s\n", g.KeyPackage.ID)
			if g.Server != "" {
				fmt.Fprintf(out, "server:       %s\n", g.Server)
			}
			for pk, id := range g.Participants {
				fmt.Fprintf(out, "participant:  %s -> %s\n", pk, id)
			}
			return nil
		},
	}
}
