package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uniquestream/packagekit/pkg/catalog"
	packagetypes "github.com/uniquestream/packagekit/pkg/package"
)

func newManifestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Work with scene package manifests",
	}

	var root string
	validate := &cobra.Command{
		Use:   "validate <manifest.json>",
		Short: "Parse a manifest and check it against the host and, with --root, the files on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := packagetypes.LoadManifestFromFile(args[0])
			if err != nil {
				return err
			}
			if err := m.ValidateCompatibility(a.cfg.Host.Version); err != nil {
				return err
			}
			if root != "" {
				if err := m.ValidateResources(root); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) is valid\n", m, m.Name)
			fmt.Fprintf(out, "  Minimum host: %s\n", orDash(m.MinHostVersion))
			fmt.Fprintf(out, "  Resources:    %d\n", len(m.Resources))
			fmt.Fprintf(out, "  Add-ons:      %d\n", len(m.Addons))
			return nil
		},
	}
	validate.Flags().StringVar(&root, "root", "", "package root to validate resources under")

	cmd.AddCommand(validate)
	return cmd
}

func newCatalogCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the package portal",
	}

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List scene packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := a.fetcher()
			defer f.Close()

			entries, err := a.client(f).List(cmd.Context(), a.cfg.Portal.Token)
			if err != nil {
				return err
			}
			entries = catalog.Filter(entries, filter)

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No packages found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "ID\tNAME\tVERSION\tTYPE\tHOST MIN\tSUMMARY")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID,
					e.Name,
					orDash(e.Version),
					e.DisplayType(),
					orDash(e.MinHostVersion),
					truncateString(orDash(e.Summary), 40),
				)
			}
			return nil
		},
	}
	list.Flags().StringVar(&filter, "filter", "", "only show packages whose name, summary or type contains this text")

	var query string
	plugins := &cobra.Command{
		Use:   "plugins",
		Short: "List plugin packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := a.fetcher()
			defer f.Close()

			reqs, err := a.client(f).Plugins(cmd.Context(), query, a.cfg.Portal.Token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(reqs) == 0 {
				fmt.Fprintln(out, "No plugins found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "ID\tNAME\tVERSION\tCOMPATIBILITY\tSHA256")
			for _, r := range reqs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Name, r.Version, orDash(r.Compatibility), truncateString(orDash(r.SHA256), 19))
			}
			return nil
		},
	}
	plugins.Flags().StringVar(&query, "query", "", "search text")

	cmd.AddCommand(list, plugins)
	return cmd
}

func newLoginCommand(a *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the package portal and print an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := a.fetcher()
			defer f.Close()

			session, err := a.client(f).Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if !session.Authenticated() {
				return catalog.ErrLoginFailed
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as %s (%s)\n", session.Username, orDash(session.Role))
			fmt.Fprintf(out, "export PACKAGEKIT_PORTAL_TOKEN=%s\n", session.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "portal username")
	cmd.Flags().StringVar(&password, "password", "", "portal password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
