package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polarsign/frost-ceremony/pkg/keystore"
)

func newContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the contact book",
	}
	cmd.AddCommand(newContactsExportCmd(), newContactsImportCmd(), newContactsListCmd(), newContactsRemoveCmd())
	return cmd
}

func newContactsExportCmd() *cobra.Command {
	var name, server string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print our identity as a shareable contact string",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			encoded, err := store.ExportContact(name, server)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name to publish ourselves under")
	cmd.Flags().StringVar(&server, "server", "", "relay we can be reached through")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newContactsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <contact-string>",
		Short: "Add a contact from a shared contact string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			contact, err := keystore.ImportContact(args[0])
			if err != nil {
				return err
			}
			if err := store.AddContact(contact); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", contact.Name, contact.PubKey)
			return nil
		},
	}
}

func newContactsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			for _, c := range store.Contacts() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.Name, c.PubKey, c.Server)
			}
			return nil
		},
	}
}

func newContactsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.Load(keystorePath)
			if err != nil {
				return err
			}
			if err := store.RemoveContact(args[0]); err != nil {
				return err
			}
			return store.Save()
		},
	}
}
