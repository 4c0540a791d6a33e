package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edvin/safehouse/internal/cli"
)

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved connection profiles",
	}

	var activate bool
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Save a profile from --url, --api-key and --tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.profileStore()
			if err != nil {
				return err
			}
			p, err := store.Save(cli.Profile{Name: args[0], URL: a.url, APIKey: a.apiKey, TenantID: a.tenant})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved profile %q\n", p.Name)
			if activate {
				if err := store.SetActive(p.Name); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Active profile set to %q\n", p.Name)
			}
			return nil
		},
	}
	add.Flags().BoolVar(&activate, "activate", true, "make this the active profile")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.profileStore()
			if err != nil {
				return err
			}
			profiles, err := store.List()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Fprintln(a.out, "No profiles found. Add one with: safehousectl profile add NAME --url URL --api-key KEY --tenant ID")
				return nil
			}
			active, _ := store.Active()

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tURL\tTENANT\tACTIVE")
			for _, p := range profiles {
				marker := ""
				if p.Name == active {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.URL, p.TenantID, marker)
			}
			return w.Flush()
		},
	}

	use := &cobra.Command{
		Use:   "use NAME",
		Short: "Set the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.profileStore()
			if err != nil {
				return err
			}
			if err := store.SetActive(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Active profile set to %q\n", args[0])
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.profileStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted profile %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, use, del)
	return cmd
}
