package main

import (
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/pkg/keystore"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the keystore and generate a communication identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			if err := store.GenerateIdentity(rand.Reader); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			pub, _, err := store.Identity()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keystore created at %s\npublic key: %s\n", keystorePath, pub)
			return nil
		},
	}
}
